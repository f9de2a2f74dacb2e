// Package handler exposes login and session introspection over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/auth/be/service"
	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/metrics"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/problems"
	"github.com/traidnet/wificore/platform/go/ratelimit"
	"github.com/traidnet/wificore/platform/go/tenant"
)

// Authenticator is implemented by service.Bridge.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (service.AcceptedIdentity, error)
}

// TokenIssuer is implemented by platformauth.Issuer.
type TokenIssuer interface {
	Issue(caller platformauth.Caller) (string, time.Time, error)
}

// Throttle is implemented by ratelimit.Limiter. A nil *ratelimit.Limiter disables throttling.
type Throttle interface {
	Check(ctx context.Context, key string) (ratelimit.Decision, error)
	Hit(ctx context.Context, key string) (ratelimit.Decision, error)
	Reset(ctx context.Context, key string) error
}

// IdentityReader loads the caller's identity within the request scope.
type IdentityReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (persistence.User, error)
}

type Deps struct {
	Auth   Authenticator
	Tokens TokenIssuer
	// Throttle counts failed logins per client address and username.
	Throttle Throttle
	// UserThrottle counts failed logins per username from any address.
	UserThrottle Throttle
	Users        IdentityReader
	Metrics      *metrics.Collectors
}

type Handler struct {
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps, logger *zap.Logger) *Handler {
	if deps.Auth == nil {
		panic("auth handler requires authenticator")
	}
	if deps.Tokens == nil {
		panic("auth handler requires token issuer")
	}
	if deps.Users == nil {
		panic("auth handler requires identity reader")
	}
	if deps.Throttle == nil {
		deps.Throttle = (*ratelimit.Limiter)(nil)
	}
	if deps.UserThrottle == nil {
		deps.UserThrottle = (*ratelimit.Limiter)(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger}
}

// PublicRoutes mounts the unauthenticated endpoints.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// Routes mounts the endpoints that require an authenticated caller.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth/me", h.Me)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	TenantID    *uuid.UUID `json:"tenantId,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type loginResponse struct {
	Token           string            `json:"token"`
	TokenType       string            `json:"tokenType"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	User            userResponse      `json:"user"`
	SchemaName      string            `json:"schemaName"`
	ReplyAttributes map[string]string `json:"replyAttributes,omitempty"`
	TenantHost      string            `json:"tenantHost,omitempty"`
}

// Login implements POST /auth/login
//
// Only credential faults count against the throttle; an unreachable RADIUS
// server or a refused host never locks anybody out.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problems.Write(w, problems.Validation("invalid JSON body", nil))
		return
	}

	ctx := tenant.WithHost(r.Context(), r.Host)
	logger := logging.FromRequest(r, h.logger)
	buckets := h.buckets(r, body.Username)

	if retryAfter, blocked := h.throttled(ctx, logger, buckets); blocked {
		h.deps.Metrics.AuthAttempt(metrics.OutcomeThrottled)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		problems.Write(w, problems.New(http.StatusTooManyRequests, problems.TypeTooManyRequest,
			"Too many requests", "too many login attempts, try again later"))
		return
	}

	id, err := h.deps.Auth.Authenticate(ctx, body.Username, body.Password)
	if err != nil {
		if faults.IsCredentialFault(err) {
			for _, b := range buckets {
				if _, herr := b.throttle.Hit(ctx, b.key); herr != nil {
					logger.Warn("login throttle unavailable", zap.Error(herr))
				}
			}
		}
		h.writeError(w, r, err)
		return
	}

	for _, b := range buckets {
		if err := b.throttle.Reset(ctx, b.key); err != nil {
			logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}

	token, expiresAt, err := h.deps.Tokens.Issue(id.Caller())
	if err != nil {
		logger.Error("issue session token", zap.Error(err))
		problems.Write(w, problems.Internal())
		return
	}

	user := toUserResponse(id.User)
	user.Role = string(id.Role)
	problems.WriteJSON(w, http.StatusOK, loginResponse{
		Token:           token,
		TokenType:       "Bearer",
		ExpiresAt:       expiresAt,
		User:            user,
		SchemaName:      id.SchemaName,
		ReplyAttributes: id.ReplyAttributes,
		TenantHost:      id.TenantHost,
	})
}

// Me implements GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := platformauth.CallerFromContext(r.Context())
	if !ok || !caller.Authenticated {
		problems.Write(w, problems.New(http.StatusUnauthorized, problems.TypeUnauthorized, "Authentication failed", "authentication failed"))
		return
	}

	user, err := h.deps.Users.GetByID(r.Context(), caller.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			problems.Write(w, problems.New(http.StatusNotFound, problems.TypeNotFound, "Not found", "user not found"))
			return
		}
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if p, ok := problems.FromFault(err); ok {
		problems.Write(w, p)
		return
	}
	logging.FromRequest(r, h.logger).Error("auth request failed", zap.Error(err))
	problems.Write(w, problems.Internal())
}

type bucket struct {
	throttle Throttle
	key      string
}

// buckets returns the per-address and the per-username counters of a login.
// RemoteAddr is only rewritten by RealIP for trusted proxies.
func (h *Handler) buckets(r *http.Request, username string) []bucket {
	addr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		addr = r.RemoteAddr
	}
	user := strings.ToLower(strings.TrimSpace(username))
	return []bucket{
		{throttle: h.deps.Throttle, key: "login:addr:" + addr + "|" + user},
		{throttle: h.deps.UserThrottle, key: "login:user:" + user},
	}
}

// throttled reports whether any bucket is exhausted and the longest wait.
// Redis failures fail open.
func (h *Handler) throttled(ctx context.Context, logger *zap.Logger, buckets []bucket) (time.Duration, bool) {
	var (
		wait    time.Duration
		blocked bool
	)
	for _, b := range buckets {
		decision, err := b.throttle.Check(ctx, b.key)
		if err != nil {
			logger.Warn("login throttle unavailable", zap.Error(err))
			continue
		}
		if !decision.Allowed {
			blocked = true
			wait = max(wait, decision.RetryAfter)
		}
	}
	return wait, blocked
}

func toUserResponse(u persistence.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		TenantID:    u.TenantID,
		LastLoginAt: u.LastLoginAt,
	}
}
