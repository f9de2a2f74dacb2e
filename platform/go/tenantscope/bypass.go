package tenantscope

import (
	"context"

	"github.com/google/uuid"
)

// Variant names one of the closed set of scope overrides.
type Variant string

const (
	VariantWithoutTenant Variant = "without_tenant"
	VariantWithTenant    Variant = "with_tenant"
	VariantAllTenants    Variant = "all_tenants"
)

type bypass struct {
	variant  Variant
	tenantID uuid.UUID
	reason   string
}

type ctxKey struct{}

// WithoutTenant disables tenant filtering for queries issued with the returned
// context. Reserved for trusted internal paths such as identity reconciliation
// during login; every use is audited with reason.
func WithoutTenant(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, ctxKey{}, bypass{variant: VariantWithoutTenant, reason: reason})
}

// WithTenant pins the filter to tenantID. Only system administrators may use it;
// anyone else gets faults.ErrScopeBypassUnauthorized when the filter is applied.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, bypass{variant: VariantWithTenant, tenantID: tenantID})
}

// AllTenants is the reporting alias for a full bypass.
func AllTenants(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, ctxKey{}, bypass{variant: VariantAllTenants, reason: reason})
}

func bypassFrom(ctx context.Context) (bypass, bool) {
	if ctx == nil {
		return bypass{}, false
	}
	b, ok := ctx.Value(ctxKey{}).(bypass)
	return b, ok
}

// ExplicitTenant returns the tenant pinned by WithTenant, if any.
func ExplicitTenant(ctx context.Context) (uuid.UUID, bool) {
	b, ok := bypassFrom(ctx)
	if !ok || b.variant != VariantWithTenant {
		return uuid.Nil, false
	}
	return b.tenantID, true
}
