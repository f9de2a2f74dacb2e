package bootstrap

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/apps/cli/cmd/cliutil"
	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/requesttrace"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

// Notes/constraints:
// - Platform DDL is idempotent; rerunning bootstrap is safe.
// - System administrators have no tenant and no RADIUS mapping. They sign in
//   with a session token minted by `auth devtoken --role system_admin`.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (platform schema, system administrator)",
	}

	cmd.AddCommand(platformCommand())
	return cmd
}

func platformCommand() *cobra.Command {
	var (
		db         cliutil.DBFlags
		adminUser  string
		adminEmail string
	)

	c := &cobra.Command{
		Use:   "platform",
		Short: "Apply the platform schema and optionally record a system administrator identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := requesttrace.IntoContext(cmd.Context(), requesttrace.System("cli-bootstrap"))

			pool, _, logger, err := db.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)
			defer func() { _ = logger.Sync() }()

			if strings.TrimSpace(adminUser) == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Platform schema ready in %q.\n", db.SystemSchema)
				return nil
			}

			userStore, err := persistence.NewUserStore(pool, tenantscope.New(logger))
			if err != nil {
				return fmt.Errorf("init user store: %w", err)
			}

			user, created, err := userStore.FindOrCreate(
				tenantscope.WithoutTenant(ctx, "bootstrap system administrator"),
				persistence.CreateUserParams{
					Username: adminUser,
					Email:    adminEmail,
					Role:     string(platformauth.RoleSystemAdmin),
				},
			)
			if err != nil {
				return fmt.Errorf("seed system administrator: %w", err)
			}
			if user.Role != string(platformauth.RoleSystemAdmin) {
				return fmt.Errorf("user %q exists with role %s", user.Username, user.Role)
			}
			logger.Info("system administrator ready", zap.String("user_id", user.ID.String()), zap.Bool("created", created))

			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. System administrator: %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&adminUser, "admin-username", "", "System administrator username (optional)")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "System administrator email")

	return c
}
