// Package radiususer manages per-tenant RADIUS credentials from the command line.
package radiususer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/traidnet/wificore/apps/cli/cmd/cliutil"
	"github.com/traidnet/wificore/domains/radius-users/be/service"
	"github.com/traidnet/wificore/platform/go/persistence"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radius-user",
		Short: "Tenant RADIUS credentials (add/remove/passwd)",
	}

	cmd.AddCommand(addCommand())
	cmd.AddCommand(removeCommand())
	cmd.AddCommand(passwdCommand())
	return cmd
}

type commonFlags struct {
	db       cliutil.DBFlags
	tenantID string
	username string
}

func (f *commonFlags) bind(c *cobra.Command) {
	f.db.Bind(c)
	c.Flags().StringVar(&f.tenantID, "tenant-id", "", "Tenant UUID")
	c.Flags().StringVar(&f.username, "username", "", "RADIUS username")
	_ = c.MarkFlagRequired("tenant-id")
	_ = c.MarkFlagRequired("username")
}

func (f *commonFlags) run(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service, tenantID uuid.UUID) error) error {
	tenantID, err := uuid.Parse(f.tenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}

	ctx := cmd.Context()
	pool, tenantDB, logger, err := f.db.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer persistence.ClosePool(pool)
	defer func() { _ = logger.Sync() }()

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		return fmt.Errorf("init tenant store: %w", err)
	}
	mappingStore, err := persistence.NewSchemaMappingStore(pool)
	if err != nil {
		return fmt.Errorf("init schema mapping store: %w", err)
	}

	return fn(ctx, service.New(tenantStore, tenantDB, mappingStore, logger), tenantID)
}

func addCommand() *cobra.Command {
	var (
		flags    commonFlags
		password string
		role     string
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Map a username to the tenant and store its RADIUS password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, func(ctx context.Context, svc *service.Service, tenantID uuid.UUID) error {
				m, err := svc.Create(ctx, service.CreateInput{
					TenantID: tenantID,
					Username: flags.username,
					Password: password,
					Role:     role,
				})
				if err != nil {
					return fmt.Errorf("add radius user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "RADIUS user added. %s -> %s (role %s)\n", m.Username, m.SchemaName, m.UserRole)
				return nil
			})
		},
	}

	flags.bind(c)
	c.Flags().StringVar(&password, "password", "", "Cleartext password stored in radcheck")
	c.Flags().StringVar(&role, "role", "user", "admin, user or hotspot_user")
	_ = c.MarkFlagRequired("password")

	return c
}

func removeCommand() *cobra.Command {
	var flags commonFlags

	c := &cobra.Command{
		Use:   "remove",
		Short: "Deactivate the mapping and delete the user's RADIUS rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, func(ctx context.Context, svc *service.Service, tenantID uuid.UUID) error {
				if err := svc.Delete(ctx, tenantID, flags.username); err != nil {
					return fmt.Errorf("remove radius user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "RADIUS user removed. %s\n", flags.username)
				return nil
			})
		},
	}

	flags.bind(c)
	return c
}

func passwdCommand() *cobra.Command {
	var (
		flags    commonFlags
		password string
	)

	c := &cobra.Command{
		Use:   "passwd",
		Short: "Replace a RADIUS user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, func(ctx context.Context, svc *service.Service, tenantID uuid.UUID) error {
				if err := svc.UpdatePassword(ctx, tenantID, flags.username, password); err != nil {
					return fmt.Errorf("update radius password: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "RADIUS password updated. %s\n", flags.username)
				return nil
			})
		},
	}

	flags.bind(c)
	c.Flags().StringVar(&password, "password", "", "New cleartext password")
	_ = c.MarkFlagRequired("password")

	return c
}
