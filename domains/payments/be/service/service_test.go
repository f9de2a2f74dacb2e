package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/guard"
	"github.com/traidnet/wificore/platform/go/metrics"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/tenant"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

type memPackages map[uuid.UUID]persistence.Package

func (m memPackages) GetPackage(_ context.Context, id uuid.UUID) (persistence.Package, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return persistence.Package{}, persistence.ErrPackageNotFound
}

type memUsers map[uuid.UUID]persistence.User

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (persistence.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return persistence.User{}, persistence.ErrUserNotFound
}

type memPayments struct {
	scope *tenantscope.Enforcer
	rows  map[string]persistence.Payment
}

func (m *memPayments) CreatePayment(ctx context.Context, p persistence.Payment) (persistence.Payment, error) {
	tid, err := m.scope.TenantForWrite(ctx)
	if err != nil {
		return persistence.Payment{}, err
	}
	if _, dup := m.rows[p.Reference]; dup {
		return persistence.Payment{}, persistence.ErrPaymentConflict
	}
	p.ID = uuid.New()
	p.TenantID = tid
	m.rows[p.Reference] = p
	return p, nil
}

func setup(t *testing.T) (*Service, *memPayments, *metrics.Collectors, uuid.UUID, persistence.Package, persistence.Package, persistence.User) {
	t.Helper()
	acme, beta := uuid.New(), uuid.New()
	daily := persistence.Package{ID: uuid.New(), TenantID: acme, Price: 50, ValidityHours: 24, IsActive: true}
	foreign := persistence.Package{ID: uuid.New(), TenantID: beta, Price: 300, ValidityHours: 168, IsActive: true}
	alice := persistence.User{ID: uuid.New(), TenantID: &acme, Username: "alice", IsActive: true}

	m := metrics.New(prometheus.NewRegistry())
	repo := &memPayments{scope: tenantscope.New(nil), rows: map[string]persistence.Payment{}}
	svc := New(memPackages{daily.ID: daily, foreign.ID: foreign}, memUsers{alice.ID: alice}, repo, guard.New(zap.NewNop(), m), nil)
	return svc, repo, m, acme, daily, foreign, alice
}

func callerCtx(user persistence.User, tid uuid.UUID) context.Context {
	ctx := platformauth.WithCaller(context.Background(), platformauth.Caller{
		UserID: user.ID, Username: user.Username, Role: platformauth.RoleHotspotUser, TenantID: &tid, Authenticated: true,
	})
	ctx, holder := tenant.Begin(ctx)
	holder.Set(tid)
	return ctx
}

func TestInitiateRecordsPendingPayment(t *testing.T) {
	t.Parallel()
	svc, repo, _, acme, daily, _, alice := setup(t)

	p, err := svc.Initiate(callerCtx(alice, acme), InitiateInput{PackageID: daily.ID, Phone: " +254712345678 "})
	require.NoError(t, err)
	require.Equal(t, acme, p.TenantID)
	require.Equal(t, StatusPending, p.Status)
	require.Equal(t, 50.0, p.Amount)
	require.Equal(t, "+254712345678", p.Phone)
	require.Regexp(t, `^WC-[0-9A-F]{12}$`, p.Reference)
	require.Len(t, repo.rows, 1)
}

func TestInitiateRejectsForeignPackage(t *testing.T) {
	t.Parallel()
	svc, repo, m, acme, _, foreign, alice := setup(t)

	_, err := svc.Initiate(callerCtx(alice, acme), InitiateInput{PackageID: foreign.ID, Phone: "+254712345678"})
	require.ErrorIs(t, err, faults.ErrCrossTenantViolation)
	require.Empty(t, repo.rows)
	require.Equal(t, 1.0, testutil.ToFloat64(m.CrossTenantViolationsTotal.WithLabelValues("package")))
}

func TestInitiateValidation(t *testing.T) {
	t.Parallel()
	svc, _, _, acme, daily, _, alice := setup(t)
	ctx := callerCtx(alice, acme)

	_, err := svc.Initiate(ctx, InitiateInput{Phone: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "phone")
	require.Contains(t, verr.Fields, "packageId")

	_, err = svc.Initiate(ctx, InitiateInput{PackageID: daily.ID, Phone: "+254712345678", UserID: uuid.New()})
	require.ErrorIs(t, err, ErrNotSelf)

	_, err = svc.Initiate(ctx, InitiateInput{PackageID: uuid.New(), Phone: "+254712345678"})
	require.ErrorIs(t, err, ErrPackageNotFound)
}

func TestInitiateDuplicateReference(t *testing.T) {
	t.Parallel()
	svc, _, _, acme, daily, _, alice := setup(t)
	ctx := callerCtx(alice, acme)

	_, err := svc.Initiate(ctx, InitiateInput{PackageID: daily.ID, Phone: "+254712345678", Reference: "QK12"})
	require.NoError(t, err)
	_, err = svc.Initiate(ctx, InitiateInput{PackageID: daily.ID, Phone: "+254712345678", Reference: "QK12"})
	require.ErrorIs(t, err, ErrDuplicateReference)
}
