package tenantcmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/apps/cli/cmd/cliutil"
	"github.com/traidnet/wificore/domains/tenants/be/provisioning"
	"github.com/traidnet/wificore/domains/tenants/be/repo"
	"github.com/traidnet/wificore/domains/tenants/be/service"
	"github.com/traidnet/wificore/platform/go/persistence"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create/deactivate/reprovision/list)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(deactivateCommand())
	cmd.AddCommand(reprovisionCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

// withService opens the database and builds the tenant registry service.
func withService(ctx context.Context, cmd *cobra.Command, db *cliutil.DBFlags, fn func(svc *service.Service) error) error {
	pool, tenantDB, logger, err := db.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer persistence.ClosePool(pool)
	defer func() { _ = logger.Sync() }()

	svc, err := newService(pool, tenantDB, logger)
	if err != nil {
		return err
	}
	return fn(svc)
}

func newService(pool *pgxpool.Pool, tenantDB *persistence.TenantDB, logger *zap.Logger) (*service.Service, error) {
	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init tenant store: %w", err)
	}
	tenantRepo := repo.NewPostgresRepository(pool, tenantStore, logger)
	return service.New(tenantRepo, provisioning.NewDBProvisioner(pool, tenantDB, logger), logger), nil
}

func createCommand() *cobra.Command {
	var (
		db         cliutil.DBFlags
		tenantSlug string
		tenantName string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant and provision its RADIUS namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withService(ctx, cmd, &db, func(svc *service.Service) error {
				t, err := svc.Create(ctx, service.CreateInput{Slug: tenantSlug, Name: tenantName})
				if err != nil {
					if errors.Is(err, service.ErrProvisioning) && t.ID != uuid.Nil {
						return fmt.Errorf("tenant %s created inactive; run `tenant reprovision --tenant-id %s`: %w", t.Slug, t.ID, err)
					}
					return fmt.Errorf("create tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant created. %s (%s) schema=%s\n", t.Slug, t.ID, t.SchemaName)
				return nil
			})
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&tenantSlug, "tenant-slug", "", "Slug for the tenant (lowercase letters, digits, hyphens)")
	c.Flags().StringVar(&tenantName, "tenant-name", "", "Display name for the tenant (defaults to slug)")
	_ = c.MarkFlagRequired("tenant-slug")

	return c
}

func deactivateCommand() *cobra.Command {
	var (
		db       cliutil.DBFlags
		tenantID string
	)

	c := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate a tenant and every schema mapping that points at it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			ctx := cmd.Context()
			return withService(ctx, cmd, &db, func(svc *service.Service) error {
				t, err := svc.Deactivate(ctx, id)
				if err != nil {
					return fmt.Errorf("deactivate tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant deactivated. %s (%s)\n", t.Slug, t.ID)
				return nil
			})
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}

func reprovisionCommand() *cobra.Command {
	var (
		db       cliutil.DBFlags
		tenantID string
	)

	c := &cobra.Command{
		Use:   "reprovision",
		Short: "Re-run namespace provisioning and activate the tenant when ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			ctx := cmd.Context()
			return withService(ctx, cmd, &db, func(svc *service.Service) error {
				t, err := svc.Reprovision(ctx, id)
				if err != nil {
					return fmt.Errorf("reprovision tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant provisioned. %s (%s) active=%t\n", t.Slug, t.ID, t.IsActive)
				return nil
			})
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}

func listCommand() *cobra.Command {
	var (
		db              cliutil.DBFlags
		includeInactive bool
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withService(ctx, cmd, &db, func(svc *service.Service) error {
				res, err := svc.List(ctx, service.ListOptions{Page: 1, PageSize: 100, IncludeInactive: includeInactive})
				if err != nil {
					return fmt.Errorf("list tenants: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tSCHEMA\tACTIVE")
				for _, t := range res.Tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", t.ID, t.Slug, t.SchemaName, t.IsActive)
				}
				return w.Flush()
			})
		},
	}

	db.Bind(c)
	c.Flags().BoolVar(&includeInactive, "include-inactive", false, "Include deactivated tenants")

	return c
}
