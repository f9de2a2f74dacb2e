package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	platformlogging "github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/problems"
	"github.com/traidnet/wificore/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo so services and audit logs can
// name the actor. It should run after the JWT middleware so the caller is available when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		var audit requesttrace.AuditInfo
		if caller, ok := platformauth.CallerFromContext(r.Context()); ok && caller.Authenticated {
			var err error
			audit, err = requesttrace.FromCaller(caller, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build audit info from caller", zap.Error(err))
				}
				problems.Write(w, problems.New(http.StatusUnauthorized, problems.TypeUnauthorized, "Unauthorized", "authentication failed"))
				return
			}
		} else {
			audit = requesttrace.Anonymous(requestID)
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
			if audit.UserID != nil {
				fields = append(fields, zap.String("user_id", audit.UserID.String()))
			}
			if audit.TenantID != nil {
				fields = append(fields, zap.String("tenant_id", audit.TenantID.String()))
			}
			logger = logger.With(fields...)
			ctx = platformlogging.WithLogger(ctx, logger)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
