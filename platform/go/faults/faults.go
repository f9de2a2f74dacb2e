// Package faults classifies failures raised by the tenancy and authentication core.
//
// Credential faults are collapsed into a single outward message so callers cannot
// tell which part of a login failed. Integrity and authorization faults abort the
// unit of work and are never retried.
package faults

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Credential faults.
var (
	ErrUnknownUser        = errors.New("unknown user")
	ErrInactiveMapping    = errors.New("inactive schema mapping")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveIdentity   = errors.New("identity is inactive")
	ErrInactiveTenant     = errors.New("tenant is inactive")
)

// ErrAuthServerUnavailable is returned when the RADIUS server cannot be reached
// or does not answer in time. Callers may retry; the bridge never does.
var ErrAuthServerUnavailable = errors.New("authentication server unavailable")

// Integrity and authorization faults.
var (
	ErrAmbiguousMapping        = errors.New("ambiguous schema mapping")
	ErrSchemaMismatch          = errors.New("schema mapping does not match tenant schema")
	ErrScopeBypassUnauthorized = errors.New("scope bypass requires system administrator")
	ErrCrossTenantViolation    = errors.New("cross-tenant violation")
)

// ErrHostTenantMismatch is returned when a tenant user reaches the API through
// a host that belongs to another tenant, or through the main domain where a
// tenant host is required.
var ErrHostTenantMismatch = errors.New("host does not belong to caller tenant")

// CrossTenantViolation reports an entity referenced from a tenant other than the
// caller's. The fields are for audit logs only and must not reach the client.
type CrossTenantViolation struct {
	EntityType    string
	EntityID      string
	EntityTenant  uuid.UUID
	CallerTenant  uuid.UUID
	CallerHasNone bool
}

func (e *CrossTenantViolation) Error() string {
	caller := e.CallerTenant.String()
	if e.CallerHasNone {
		caller = "none"
	}
	return fmt.Sprintf("cross-tenant violation: %s %s belongs to tenant %s, caller tenant %s",
		e.EntityType, e.EntityID, e.EntityTenant, caller)
}

// Is lets errors.Is(err, ErrCrossTenantViolation) match the typed error.
func (e *CrossTenantViolation) Is(target error) bool {
	return target == ErrCrossTenantViolation
}

// IsCredentialFault reports whether err should be shown to clients as a generic
// authentication failure.
func IsCredentialFault(err error) bool {
	return errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrInactiveMapping) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInactiveIdentity) ||
		errors.Is(err, ErrInactiveTenant)
}

// IsIntegrityFault reports bug-or-attack conditions that must abort without side effects.
func IsIntegrityFault(err error) bool {
	return errors.Is(err, ErrAmbiguousMapping) ||
		errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrScopeBypassUnauthorized) ||
		errors.Is(err, ErrCrossTenantViolation)
}

// Retryable reports whether the caller may repeat the operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrAuthServerUnavailable)
}

// Outward maps err to the HTTP status and message safe to return to a client.
func Outward(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case IsCredentialFault(err):
		return http.StatusUnauthorized, "authentication failed"
	case Retryable(err):
		return http.StatusServiceUnavailable, "authentication service unavailable, try again later"
	case errors.Is(err, ErrCrossTenantViolation), errors.Is(err, ErrScopeBypassUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrHostTenantMismatch):
		return http.StatusForbidden, "use your tenant host"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
