package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/traidnet/wificore/database"
)

// BootstrapPlatformSchema creates the system schema (if missing) and applies the
// platform DDL in a single transaction, in this order:
//  1. platform/tenants.sql
//  2. platform/users.sql
//  3. platform/radius_user_schema_mapping.sql
//  4. platform/catalog.sql
//  5. platform/billing.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for CLI bootstrap and tests.
func BootstrapPlatformSchema(ctx context.Context, pool *pgxpool.Pool, systemSchema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap platform schema: pool is required")
	}
	if systemSchema == "" {
		return fmt.Errorf("bootstrap platform schema: system schema is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{systemSchema}.Sanitize()); err != nil {
		return fmt.Errorf("create system schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{systemSchema}.Sanitize()); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, file := range sqlassets.PlatformStatements() {
		if _, err := tx.Exec(ctx, file); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ApplyTenantSpaceDDL creates the FreeRADIUS tables inside the namespace that
// tx is bound to.
func ApplyTenantSpaceDDL(ctx context.Context, tx pgx.Tx) error {
	for _, stmt := range splitStatements(sqlassets.RadiusSQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply tenant ddl: %w", err)
		}
	}
	return nil
}

// CreateNamespace creates the tenant's schema. The name must already be validated.
func CreateNamespace(ctx context.Context, q Querier, schema string) error {
	if _, err := q.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// splitStatements splits a DDL file without dollar-quoted bodies on semicolons.
func splitStatements(sql string) []string {
	raw := strings.Split(sql, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
