package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role enumerates identity roles.
type Role string

const (
	RoleSystemAdmin Role = "system_admin"
	RoleAdmin       Role = "admin"
	RoleUser        Role = "user"
	RoleHotspotUser Role = "hotspot_user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleAdmin, RoleUser, RoleHotspotUser:
		return true
	default:
		return false
	}
}

// Caller is the ambient identity for one request or job. It is never persisted.
type Caller struct {
	UserID        uuid.UUID
	Username      string
	Role          Role
	TenantID      *uuid.UUID
	Authenticated bool
}

// IsSystemAdmin reports whether the caller is an authenticated system administrator.
func (c Caller) IsSystemAdmin() bool {
	return c.Authenticated && c.Role == RoleSystemAdmin
}

// Tenant returns the caller's tenant, if it has one.
func (c Caller) Tenant() (uuid.UUID, bool) {
	if c.TenantID == nil || *c.TenantID == uuid.Nil {
		return uuid.Nil, false
	}
	return *c.TenantID, true
}

type ctxKey string

const ctxCaller ctxKey = "WIFICORE_CALLER"

// WithCaller returns a derived context carrying caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, ctxCaller, caller)
}

// CallerFromContext extracts the Caller and a boolean indicating presence.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(ctxCaller).(Caller)
	return caller, ok
}
