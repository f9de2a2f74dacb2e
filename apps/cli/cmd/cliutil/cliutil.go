// Package cliutil holds the database and logger setup shared by CLI commands.
package cliutil

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	platformlogging "github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/persistence"
)

// DBFlags are the connection flags every database command accepts.
type DBFlags struct {
	DatabaseURL  string
	SystemSchema string
	LogLevel     string
}

// Bind registers the flags on c and marks database-url required.
func (f *DBFlags) Bind(c *cobra.Command) {
	c.Flags().StringVar(&f.DatabaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&f.SystemSchema, "system-schema", "public", "Schema holding the platform tables")
	c.Flags().StringVar(&f.LogLevel, "log-level", "warn", "Log level written to stderr")
	_ = c.MarkFlagRequired("database-url")
}

// Open connects, applies the platform DDL and returns the pool, a TenantDB and a logger.
// The caller closes the pool.
func (f *DBFlags) Open(ctx context.Context, c *cobra.Command) (*pgxpool.Pool, *persistence.TenantDB, *zap.Logger, error) {
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     f.LogLevel,
		Output:    c.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      f.DatabaseURL,
		SystemSchema:    f.SystemSchema,
		ApplicationName: "wificore-cli",
		MaxConns:        4,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init pool: %w", err)
	}
	if err := persistence.BootstrapPlatformSchema(ctx, pool, f.SystemSchema); err != nil {
		persistence.ClosePool(pool)
		return nil, nil, nil, fmt.Errorf("bootstrap platform schema: %w", err)
	}

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:         pool,
		SystemSchema: f.SystemSchema,
		Logger:       logger,
	})
	return pool, tenantDB, logger, nil
}
