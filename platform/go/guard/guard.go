// Package guard rejects operations that reference entities owned by a tenant
// other than the one the current unit of work runs for.
package guard

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/metrics"
	"github.com/traidnet/wificore/platform/go/requesttrace"
	"github.com/traidnet/wificore/platform/go/tenant"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

// Owned is implemented by tenant-owned entities.
type Owned interface {
	EntityType() string
	EntityID() string
	OwnerTenantID() uuid.UUID
}

type Guard struct {
	audit   *zap.Logger
	metrics *metrics.Collectors
}

func New(logger *zap.Logger, m *metrics.Collectors) *Guard {
	return &Guard{audit: logging.Audit(logger), metrics: m}
}

// ContextTenant returns the tenant the unit of work acts for: an explicit
// tenant pinned by a system administrator, then the TenantContext, then the
// authenticated caller's tenant.
func ContextTenant(ctx context.Context) (uuid.UUID, bool) {
	if id, ok := tenantscope.ExplicitTenant(ctx); ok {
		if caller, _ := platformauth.CallerFromContext(ctx); caller.IsSystemAdmin() {
			return id, true
		}
	}
	if id, ok := tenant.CurrentID(ctx); ok {
		return id, true
	}
	caller, _ := platformauth.CallerFromContext(ctx)
	return caller.Tenant()
}

// AssertSameTenant returns nil when entity belongs to the context tenant and a
// *faults.CrossTenantViolation otherwise. A context without a tenant never passes.
func (g *Guard) AssertSameTenant(ctx context.Context, entity Owned) error {
	contextTenant, ok := ContextTenant(ctx)
	if ok && entity.OwnerTenantID() == contextTenant {
		return nil
	}

	violation := &faults.CrossTenantViolation{
		EntityType:    entity.EntityType(),
		EntityID:      entity.EntityID(),
		EntityTenant:  entity.OwnerTenantID(),
		CallerTenant:  contextTenant,
		CallerHasNone: !ok,
	}
	g.report(ctx, violation)
	return violation
}

// AssertAllSameTenant checks entities in order and stops at the first violation.
func (g *Guard) AssertAllSameTenant(ctx context.Context, entities ...Owned) error {
	for _, e := range entities {
		if err := g.AssertSameTenant(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) report(ctx context.Context, v *faults.CrossTenantViolation) {
	g.metrics.CrossTenantViolation(v.EntityType)

	fields := []zap.Field{
		zap.String("entity_type", v.EntityType),
		zap.String("entity_id", v.EntityID),
		zap.String("entity_tenant_id", v.EntityTenant.String()),
	}
	if v.CallerHasNone {
		fields = append(fields, zap.String("caller_tenant_id", ""))
	} else {
		fields = append(fields, zap.String("caller_tenant_id", v.CallerTenant.String()))
	}
	if caller, ok := platformauth.CallerFromContext(ctx); ok {
		fields = append(fields, zap.String("user_id", caller.UserID.String()), zap.String("role", string(caller.Role)))
	}
	if info, ok := requesttrace.FromContext(ctx); ok {
		fields = append(fields, zap.String("request_id", info.RequestID))
	}

	g.audit.Error("cross-tenant violation", fields...)
}
