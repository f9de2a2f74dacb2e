package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/tenant"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

func TestUserStoreFindOrCreateCreatesAtMostOnce(t *testing.T) {
	t.Parallel()

	pool := mustTestPool(t, 0)
	ctx := tenantscope.WithoutTenant(context.Background(), "identity reconciliation")

	tenants, err := NewTenantStore(pool)
	require.NoError(t, err)
	acme := mustCreateTenant(t, tenants, "acme-isp")

	users, err := NewUserStore(pool, tenantscope.New(zap.NewNop()))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]User, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], created[i], errs[i] = users.FindOrCreate(ctx, CreateUserParams{
				TenantID: &acme.ID,
				Username: "alice",
				Role:     "user",
			})
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].ID, results[i].ID)
		if created[i] {
			createdCount++
		}
	}
	require.Equal(t, 1, createdCount)

	var rows int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND username = 'alice'`, acme.ID).Scan(&rows))
	require.Equal(t, 1, rows)
}

func TestUserStoreReadsAreTenantScoped(t *testing.T) {
	t.Parallel()

	pool := mustTestPool(t, 0)
	bg := context.Background()

	tenants, err := NewTenantStore(pool)
	require.NoError(t, err)
	acme := mustCreateTenant(t, tenants, "acme-isp")
	beta := mustCreateTenant(t, tenants, "beta-net")

	users, err := NewUserStore(pool, tenantscope.New(zap.NewNop()))
	require.NoError(t, err)

	alice, err := users.Create(bg, CreateUserParams{TenantID: &acme.ID, Username: "alice", Role: "user"})
	require.NoError(t, err)
	bob, err := users.Create(bg, CreateUserParams{TenantID: &beta.ID, Username: "bob", Role: "user"})
	require.NoError(t, err)

	acmeCaller := platformauth.WithCaller(bg, platformauth.Caller{
		UserID:        alice.ID,
		Role:          platformauth.RoleUser,
		TenantID:      &acme.ID,
		Authenticated: true,
	})

	got, err := users.GetByID(acmeCaller, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = users.GetByID(acmeCaller, bob.ID)
	require.ErrorIs(t, err, ErrUserNotFound)

	require.ErrorIs(t, users.SetActive(acmeCaller, bob.ID, false), ErrUserNotFound)

	admin := platformauth.WithCaller(bg, platformauth.Caller{Role: platformauth.RoleSystemAdmin, Authenticated: true})
	got, err = users.GetByID(admin, bob.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Username)

	_, err = users.GetByID(tenantscope.WithTenant(acmeCaller, beta.ID), bob.ID)
	require.Error(t, err)
}

func TestUserStoreLoginBookkeepingRunsUnderTenantContext(t *testing.T) {
	t.Parallel()

	pool := mustTestPool(t, 0)
	bg := context.Background()

	tenants, err := NewTenantStore(pool)
	require.NoError(t, err)
	acme := mustCreateTenant(t, tenants, "acme-isp")

	users, err := NewUserStore(pool, tenantscope.New(zap.NewNop()))
	require.NoError(t, err)
	alice, err := users.Create(bg, CreateUserParams{TenantID: &acme.ID, Username: "alice", Role: "user"})
	require.NoError(t, err)

	err = tenant.Run(bg, acme.ID, func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			ok, err := users.RecordFailedLogin(ctx, acme.ID, "alice")
			require.NoError(t, err)
			require.True(t, ok)
		}
		ok, err := users.RecordFailedLogin(ctx, acme.ID, "nobody")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	reloaded, err := users.findByUsername(bg, &acme.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.FailedLoginAttempts)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, tenant.Run(bg, acme.ID, func(ctx context.Context) error {
		return users.RecordLogin(ctx, alice.ID, at)
	}))

	reloaded, err = users.findByUsername(bg, &acme.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, reloaded.FailedLoginAttempts)
	require.NotNil(t, reloaded.LastLoginAt)
	require.WithinDuration(t, at, *reloaded.LastLoginAt, time.Second)

	// Another tenant's unit of work cannot touch alice.
	require.ErrorIs(t, tenant.Run(bg, uuid.New(), func(ctx context.Context) error {
		return users.RecordLogin(ctx, alice.ID, at)
	}), ErrUserNotFound)
}
