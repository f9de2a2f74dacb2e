package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "wificore-test",
		TTL:    time.Hour,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return issuer
}

func TestIssuerRoundTripTenantCaller(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, now)

	tid := uuid.New()
	caller := Caller{UserID: uuid.New(), Username: "opA", Role: RoleAdmin, TenantID: &tid}

	token, expires, err := issuer.Issue(caller)
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(time.Hour), expires, time.Second)

	got, err := issuer.Verify(context.Background(), token)
	require.NoError(t, err)
	require.True(t, got.Authenticated)
	require.Equal(t, caller.UserID, got.UserID)
	require.Equal(t, RoleAdmin, got.Role)
	require.NotNil(t, got.TenantID)
	require.Equal(t, tid, *got.TenantID)
}

func TestIssuerSystemAdminHasNoTenant(t *testing.T) {
	issuer := newTestIssuer(t, time.Now())

	token, _, err := issuer.Issue(Caller{UserID: uuid.New(), Username: "root", Role: RoleSystemAdmin})
	require.NoError(t, err)

	got, err := issuer.Verify(context.Background(), token)
	require.NoError(t, err)
	require.True(t, got.IsSystemAdmin())
	require.Nil(t, got.TenantID)
}

func TestIssuerRejectsExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	token, _, err := newTestIssuer(t, issued).Issue(Caller{UserID: uuid.New(), Role: RoleSystemAdmin})
	require.NoError(t, err)

	_, err = newTestIssuer(t, time.Now()).Verify(context.Background(), token)
	require.Error(t, err)
}

func TestIssuerRejectsForeignSignature(t *testing.T) {
	token, _, err := newTestIssuer(t, time.Now()).Issue(Caller{UserID: uuid.New(), Role: RoleSystemAdmin})
	require.NoError(t, err)

	other, err := NewIssuer(IssuerConfig{Secret: []byte("another-secret-of-enough-length"), Issuer: "wificore-test"})
	require.NoError(t, err)

	_, err = other.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestCallerFromClaimsRequiresTenantForNonAdmins(t *testing.T) {
	claims := &SessionClaims{Role: RoleUser}
	claims.Subject = uuid.NewString()

	_, err := callerFromClaims(claims)
	require.ErrorContains(t, err, "tenant claim required")
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer(IssuerConfig{Secret: []byte("short")})
	require.Error(t, err)
}

func TestExtractJWTToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok := ExtractJWTToken(r)
	require.False(t, ok)

	r.Header.Set("Authorization", "bearer abc.def")
	token, ok := ExtractJWTToken(r)
	require.True(t, ok)
	require.Equal(t, "abc.def", token)
}
