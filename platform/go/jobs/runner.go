// Package jobs runs queued work on behalf of a tenant.
//
// A job never inherits tenant state from whoever queued it. The payload names
// the tenant explicitly and the runner establishes a fresh TenantContext for
// the job body, clearing it on every exit path.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/platform/go/metrics"
	"github.com/traidnet/wificore/platform/go/requesttrace"
	"github.com/traidnet/wificore/platform/go/tenant"
)

// ErrMissingTenant is returned for payloads that do not name a tenant.
var ErrMissingTenant = errors.New("job payload has no tenant")

// Payload is a queued unit of work.
type Payload struct {
	ID       string
	Kind     string
	TenantID uuid.UUID
	Data     map[string]string
}

// Handler executes a job body. ctx carries a TenantContext set to p.TenantID.
type Handler func(ctx context.Context, p Payload) error

// TenantChecker confirms the job's tenant still exists and is active.
type TenantChecker interface {
	ActiveTenant(ctx context.Context, id uuid.UUID) error
}

type Runner struct {
	tenants TenantChecker
	logger  *zap.Logger
	metrics *metrics.Collectors
}

func NewRunner(tenants TenantChecker, logger *zap.Logger, m *metrics.Collectors) *Runner {
	if tenants == nil {
		panic("jobs runner requires a tenant checker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{tenants: tenants, logger: logger.Named("jobs"), metrics: m}
}

// Run verifies the payload's tenant and runs h inside a TenantContext set to it.
// A panic in h is recovered and returned as an error after the context is cleared.
func (r *Runner) Run(ctx context.Context, p Payload, h Handler) (err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	logger := r.logger.With(
		zap.String("job_id", p.ID),
		zap.String("kind", p.Kind),
		zap.String("tag", "tenant:"+p.TenantID.String()),
	)

	if p.TenantID == uuid.Nil {
		r.metrics.Job(p.Kind, "rejected")
		logger.Error("job rejected", zap.Error(ErrMissingTenant))
		return ErrMissingTenant
	}
	if err := r.tenants.ActiveTenant(ctx, p.TenantID); err != nil {
		r.metrics.Job(p.Kind, "skipped")
		logger.Warn("job skipped: tenant unavailable", zap.Error(err))
		return fmt.Errorf("job %s: %w", p.ID, err)
	}

	ctx = requesttrace.IntoContext(ctx, requesttrace.Job(p.ID, p.TenantID))

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", p.ID, rec)
		}
		if err != nil {
			r.metrics.Job(p.Kind, "error")
			logger.Error("job failed", zap.Error(err))
			return
		}
		r.metrics.Job(p.Kind, "ok")
		logger.Debug("job completed")
	}()

	return tenant.Run(ctx, p.TenantID, func(ctx context.Context) error {
		return h(ctx, p)
	})
}
