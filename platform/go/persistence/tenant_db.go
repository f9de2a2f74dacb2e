package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/platform/go/tenant"
)

const (
	setSearchPathSQL = `SELECT set_config('search_path', $1, true)`
	teardownTimeout  = 5 * time.Second
)

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TenantDB runs work inside a tenant namespace on a pooled connection.
//
// The namespace is selected with a transaction-local search_path and restored
// to the system schema before the connection is handed back to the pool, on
// every exit path including panics and cancelled contexts.
type TenantDB struct {
	pool         txBeginner
	systemSchema string
	logger       *zap.Logger
}

type TenantDBConfig struct {
	Pool         *pgxpool.Pool
	SystemSchema string
	Logger       *zap.Logger
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}
	return newTenantDB(cfg.Pool, cfg.SystemSchema, cfg.Logger)
}

func newTenantDB(pool txBeginner, systemSchema string, logger *zap.Logger) *TenantDB {
	systemSchema = strings.TrimSpace(systemSchema)
	if systemSchema == "" {
		panic("TenantDB requires system schema")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantDB{pool: pool, systemSchema: systemSchema, logger: logger}
}

// SystemSchema returns the default namespace connections are restored to.
func (db *TenantDB) SystemSchema() string {
	return db.systemSchema
}

// WithTenant executes fn with search_path set to "<schema>, <system schema>".
func (db *TenantDB) WithTenant(ctx context.Context, schema string, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return err
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	released := false
	defer func() {
		if released {
			return
		}
		// Teardown must run even when ctx is already cancelled.
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()

		if rbErr := tx.Rollback(teardownCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.Warn("rollback tenant namespace transaction", zap.String("schema", schema), zap.Error(rbErr))
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if _, err := tx.Exec(ctx, setSearchPathSQL, db.searchPath(schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, setSearchPathSQL, pgx.Identifier{db.systemSchema}.Sanitize()); err != nil {
		return fmt.Errorf("restore search_path: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	released = true

	return nil
}

func (db *TenantDB) searchPath(schema string) string {
	return pgx.Identifier{schema}.Sanitize() + ", " + pgx.Identifier{db.systemSchema}.Sanitize()
}
