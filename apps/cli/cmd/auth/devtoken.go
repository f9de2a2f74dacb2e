package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/traidnet/wificore/platform/go/auth/devtoken"
)

func devTokenCommand() *cobra.Command {
	var params devtoken.Params

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a signed session token for dev/local use without a RADIUS login",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devtoken.Build(params, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.Secret, "secret", "", "JWT_SECRET of the target API")
	cmd.Flags().StringVar(&params.Username, "username", "", "username claim")
	cmd.Flags().StringVar(&params.Role, "role", "", "system_admin, admin, user or hotspot_user")

	// Optional claims
	cmd.Flags().StringVar(&params.TenantID, "tenant-id", "", "tenant UUID (required unless role is system_admin)")
	cmd.Flags().StringVar(&params.UserID, "user-id", "", "subject UUID; random when empty")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "wificore", "iss claim; must match JWT_ISSUER")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}
