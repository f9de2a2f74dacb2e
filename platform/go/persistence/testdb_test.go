package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/traidnet/wificore/platform/go/tenant"
)

const testSystemSchema = "public"

// mustTestPool starts a throwaway Postgres, applies the platform DDL and
// returns a pool capped at maxConns (0 leaves the pgx default).
func mustTestPool(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	pool, err := NewPool(ctx, PoolConfig{ConnString: mustTestDatabase(t), SystemSchema: testSystemSchema, MaxConns: maxConns})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, BootstrapPlatformSchema(ctx, pool, testSystemSchema))
	return pool
}

// mustTestDatabase starts a throwaway Postgres and returns its connection string.
func mustTestDatabase(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wificore"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connString
}

func mustCreateTenant(t *testing.T, store *TenantStore, slug string) TenantRecord {
	t.Helper()

	rec, err := store.Create(context.Background(), TenantRecord{
		ID:         uuid.New(),
		Name:       slug,
		Slug:       slug,
		SchemaName: tenant.BuildSchemaName(slug),
	})
	require.NoError(t, err)
	return rec
}
