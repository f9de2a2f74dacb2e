package auth

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/platform/go/faults"
	platformlogging "github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/radius"
)

// loginCommand performs a single Access-Request against the RADIUS server, the
// same exchange the API runs at login, and prints the outcome.
func loginCommand() *cobra.Command {
	var (
		cfg      radius.Config
		username string
		password string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Test a RADIUS Access-Request for a username/password",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := platformlogging.NewLogger(platformlogging.Config{
				Component: "cli",
				Level:     logLevel,
				Output:    cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			client, err := radius.NewClient(cfg, logger, nil)
			if err != nil {
				return err
			}

			start := time.Now()
			resp, err := client.Authenticate(cmd.Context(), radius.Request{Username: username, Password: password})
			elapsed := time.Since(start).Round(time.Millisecond)
			switch {
			case errors.Is(err, faults.ErrInvalidCredentials):
				fmt.Fprintf(cmd.OutOrStdout(), "Access-Reject (%s)\n", elapsed)
				return err
			case err != nil:
				logger.Debug("radius exchange failed", zap.Error(err))
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Access-Accept (%s)\n", elapsed)
			names := make([]string, 0, len(resp.Attributes))
			for name := range resp.Attributes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", name, resp.Attributes[name])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Host, "host", "localhost", "RADIUS server host")
	cmd.Flags().IntVar(&cfg.Port, "port", 1812, "RADIUS authentication port")
	cmd.Flags().StringVar(&cfg.Secret, "secret", "", "RADIUS shared secret")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 4*time.Second, "exchange timeout")
	cmd.Flags().StringVar(&cfg.NASIP, "nas-ip", "127.0.0.1", "NAS-IP-Address sent with the request")
	cmd.Flags().StringVar(&cfg.NASIdentifier, "nas-identifier", "wificore", "NAS-Identifier sent with the request")
	cmd.Flags().StringVar(&username, "username", "", "username to authenticate")
	cmd.Flags().StringVar(&password, "password", "", "password to authenticate")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
