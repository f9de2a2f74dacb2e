package faults

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOutwardCollapsesCredentialFaults(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrUnknownUser, ErrInactiveMapping, ErrInvalidCredentials, ErrInactiveIdentity, ErrInactiveTenant} {
		status, msg := Outward(fmt.Errorf("login: %w", err))
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "authentication failed", msg)
		require.False(t, Retryable(err))
		require.False(t, IsIntegrityFault(err))
	}
}

func TestAuthServerUnavailableIsRetryable(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("exchange: %w", ErrAuthServerUnavailable)
	require.True(t, Retryable(err))
	require.False(t, IsCredentialFault(err))

	status, _ := Outward(err)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestCrossTenantViolationMatchesSentinel(t *testing.T) {
	t.Parallel()

	entityTenant := uuid.New()
	callerTenant := uuid.New()
	var err error = &CrossTenantViolation{
		EntityType:   "package",
		EntityID:     "pkg-1",
		EntityTenant: entityTenant,
		CallerTenant: callerTenant,
	}

	require.True(t, errors.Is(err, ErrCrossTenantViolation))
	require.True(t, IsIntegrityFault(err))
	require.False(t, Retryable(err))
	require.Contains(t, err.Error(), entityTenant.String())
	require.Contains(t, err.Error(), callerTenant.String())

	var violation *CrossTenantViolation
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &violation))
	require.Equal(t, "package", violation.EntityType)

	status, msg := Outward(err)
	require.Equal(t, http.StatusForbidden, status)
	require.NotContains(t, msg, entityTenant.String())
}

func TestIntegrityFaultsAreNotRetryable(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrAmbiguousMapping, ErrSchemaMismatch, ErrScopeBypassUnauthorized} {
		require.True(t, IsIntegrityFault(err))
		require.False(t, Retryable(err))
		require.False(t, IsCredentialFault(err))
	}

	status, _ := Outward(ErrAmbiguousMapping)
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestHostTenantMismatchIsForbidden(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("login: %w", ErrHostTenantMismatch)
	require.False(t, IsCredentialFault(err))
	require.False(t, IsIntegrityFault(err))
	require.False(t, Retryable(err))

	status, msg := Outward(err)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "use your tenant host", msg)
}
