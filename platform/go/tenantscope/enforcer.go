// Package tenantscope confines queries against tenant-owned tables to the
// tenant of the current unit of work.
package tenantscope

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/tenant"
)

// ErrNoTenant is returned by TenantForWrite when nothing identifies the owning tenant.
var ErrNoTenant = errors.New("no tenant in scope")

// denyAll matches no rows. Used for authenticated callers that are neither
// system administrators nor bound to a tenant.
var denyAll = sq.Expr("FALSE")

// Builder is the shared squirrel builder using Postgres placeholders.
var Builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Enforcer derives the tenant filter for a query from the caller, the tenant
// context and any explicit bypass carried by ctx.
type Enforcer struct {
	audit *zap.Logger
}

func New(logger *zap.Logger) *Enforcer {
	return &Enforcer{audit: logging.Audit(logger)}
}

// Filter returns the predicate to AND into a query on a table whose tenant
// column is column. A nil predicate means no filter.
func (e *Enforcer) Filter(ctx context.Context, column string) (sq.Sqlizer, error) {
	caller, hasCaller := platformauth.CallerFromContext(ctx)

	if b, ok := bypassFrom(ctx); ok {
		return e.applyBypass(b, caller, column)
	}

	if hasCaller && caller.IsSystemAdmin() {
		return nil, nil
	}

	if tid, ok := tenant.CurrentID(ctx); ok {
		return sq.Eq{column: tid}, nil
	}

	if tid, ok := caller.Tenant(); ok {
		return sq.Eq{column: tid}, nil
	}

	if hasCaller && caller.Authenticated {
		e.audit.Warn("authenticated caller without tenant; denying tenant-owned rows",
			zap.String("user_id", caller.UserID.String()),
			zap.String("role", string(caller.Role)),
			zap.String("column", column),
		)
		return denyAll, nil
	}

	// Pre-authentication phase: no caller and no tenant established yet.
	return nil, nil
}

func (e *Enforcer) applyBypass(b bypass, caller platformauth.Caller, column string) (sq.Sqlizer, error) {
	switch b.variant {
	case VariantWithTenant:
		if !caller.IsSystemAdmin() {
			e.audit.Error("explicit tenant scope requested by non system administrator",
				zap.String("variant", string(b.variant)),
				zap.String("user_id", caller.UserID.String()),
				zap.String("role", string(caller.Role)),
				zap.String("requested_tenant_id", b.tenantID.String()),
			)
			return nil, faults.ErrScopeBypassUnauthorized
		}
		e.audit.Info("tenant scope pinned",
			zap.String("variant", string(b.variant)),
			zap.String("user_id", caller.UserID.String()),
			zap.String("tenant_id", b.tenantID.String()),
		)
		return sq.Eq{column: b.tenantID}, nil
	default:
		e.audit.Info("tenant scope bypassed",
			zap.String("variant", string(b.variant)),
			zap.String("reason", b.reason),
			zap.String("role", string(caller.Role)),
			zap.String("column", column),
		)
		return nil, nil
	}
}

// Select applies the tenant filter to a select builder.
func (e *Enforcer) Select(ctx context.Context, b sq.SelectBuilder, column string) (sq.SelectBuilder, error) {
	pred, err := e.Filter(ctx, column)
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return b, nil
}

// Update applies the tenant filter to an update builder.
func (e *Enforcer) Update(ctx context.Context, b sq.UpdateBuilder, column string) (sq.UpdateBuilder, error) {
	pred, err := e.Filter(ctx, column)
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return b, nil
}

// Delete applies the tenant filter to a delete builder.
func (e *Enforcer) Delete(ctx context.Context, b sq.DeleteBuilder, column string) (sq.DeleteBuilder, error) {
	pred, err := e.Filter(ctx, column)
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return b, nil
}

// TenantForWrite returns the tenant that newly inserted rows must belong to.
func (e *Enforcer) TenantForWrite(ctx context.Context) (uuid.UUID, error) {
	caller, _ := platformauth.CallerFromContext(ctx)

	if b, ok := bypassFrom(ctx); ok && b.variant == VariantWithTenant {
		if !caller.IsSystemAdmin() {
			return uuid.Nil, faults.ErrScopeBypassUnauthorized
		}
		return b.tenantID, nil
	}
	if tid, ok := tenant.CurrentID(ctx); ok {
		return tid, nil
	}
	if tid, ok := caller.Tenant(); ok {
		return tid, nil
	}
	return uuid.Nil, ErrNoTenant
}
