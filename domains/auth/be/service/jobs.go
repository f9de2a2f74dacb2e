package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/traidnet/wificore/platform/go/jobs"
)

const (
	dataUserID     = "user_id"
	dataLoggedInAt = "logged_in_at"
	dataUsername   = "username"
)

// LoginRecorder persists login bookkeeping. Implemented by persistence.UserStore;
// both methods are tenant scoped by the job's TenantContext.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailedLogin(ctx context.Context, tenantID uuid.UUID, username string) (bool, error)
}

// RegisterJobs installs the login bookkeeping handlers on d.
func RegisterJobs(d interface{ Register(kind string, h jobs.Handler) }, users LoginRecorder) {
	d.Register(JobLoginStats, LoginStatsJob(users))
	d.Register(JobFailedLogin, FailedLoginJob(users))
}

// LoginStatsJob stamps last_login_at and resets the failure counter.
func LoginStatsJob(users LoginRecorder) jobs.Handler {
	return func(ctx context.Context, p jobs.Payload) error {
		id, err := uuid.Parse(p.Data[dataUserID])
		if err != nil {
			return fmt.Errorf("login_stats: user id: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, p.Data[dataLoggedInAt])
		if err != nil {
			at = time.Now().UTC()
		}
		return users.RecordLogin(ctx, id, at)
	}
}

// FailedLoginJob increments failed_login_attempts when the identity exists.
// Unknown identities are not an error: a first login may be rejected.
func FailedLoginJob(users LoginRecorder) jobs.Handler {
	return func(ctx context.Context, p jobs.Payload) error {
		username := p.Data[dataUsername]
		if username == "" {
			return fmt.Errorf("failed_login: username missing")
		}
		_, err := users.RecordFailedLogin(ctx, p.TenantID, username)
		return err
	}
}
