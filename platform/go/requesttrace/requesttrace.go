// Package requesttrace carries who-did-what metadata for audit log entries.
package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "WIFICORE_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
	ActorKindJob       ActorKind = "job"
)

// AuditInfo captures request-scoped metadata needed for traceability and auditing.
// UserID and Role are set only when ActorKind is user. TenantID is nil for
// system administrators and anonymous requests.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *uuid.UUID
	Role      platformauth.Role
	TenantID  *uuid.UUID
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCaller builds an AuditInfo for an authenticated caller.
func FromCaller(caller platformauth.Caller, requestID string) (AuditInfo, error) {
	if !caller.Authenticated {
		return AuditInfo{}, errors.New("authenticated caller is required to build audit info")
	}
	if caller.UserID == uuid.Nil {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	userID := caller.UserID
	info := AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &userID,
		Role:      caller.Role,
		RequestID: requestID,
	}
	if tid, ok := caller.Tenant(); ok {
		info.TenantID = &tid
	}
	return info, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests such as login.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background/system operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}

// Job builds an AuditInfo for a queued job running on behalf of tenantID.
func Job(jobID string, tenantID uuid.UUID) AuditInfo {
	return AuditInfo{ActorKind: ActorKindJob, TenantID: &tenantID, RequestID: jobID}
}
