// Package service authenticates platform users against the RADIUS server of
// the tenant that owns them and reconciles the matching local identity.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/jobs"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/metrics"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/radius"
	"github.com/traidnet/wificore/platform/go/tenant"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

// Job kinds dispatched after an authentication attempt.
const (
	JobLoginStats  = "login_stats"
	JobFailedLogin = "failed_login"
)

const postAuthAccept = "Access-Accept"

// MappingResolver finds the namespace that owns a username.
type MappingResolver interface {
	Resolve(ctx context.Context, username string) (persistence.SchemaMapping, error)
}

// TenantLookup loads a tenant record regardless of its active flag.
type TenantLookup interface {
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
}

// NamespaceRunner runs fn with the connection bound to schema.
type NamespaceRunner interface {
	WithTenant(ctx context.Context, schema string, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// RadiusAuthenticator performs one Access-Request exchange.
type RadiusAuthenticator interface {
	Authenticate(ctx context.Context, req radius.Request) (radius.Response, error)
}

// NamespaceStore is the slice of the per-tenant FreeRADIUS tables the bridge touches.
type NamespaceStore interface {
	NASIdentifier(ctx context.Context) (string, error)
	ReplyAttributes(ctx context.Context, username string) ([]persistence.RadiusAttribute, error)
	RecordPostAuth(ctx context.Context, username, reply string) error
}

// IdentityStore reconciles the local identity in the shared schema.
type IdentityStore interface {
	FindOrCreate(ctx context.Context, params persistence.CreateUserParams) (persistence.User, bool, error)
}

// JobDispatcher queues post-authentication bookkeeping.
type JobDispatcher interface {
	Dispatch(p jobs.Payload) error
}

// AcceptedIdentity is the result of a successful authentication.
type AcceptedIdentity struct {
	User            persistence.User
	Role            platformauth.Role
	TenantID        uuid.UUID
	SchemaName      string
	ReplyAttributes map[string]string
	Created         bool
	// TenantHost is set when the login arrived on the main domain and the
	// client should continue on the tenant's own host.
	TenantHost string
}

// Caller returns the session identity for the accepted user.
func (a AcceptedIdentity) Caller() platformauth.Caller {
	tid := a.TenantID
	return platformauth.Caller{
		UserID:        a.User.ID,
		Username:      a.User.Username,
		Role:          a.Role,
		TenantID:      &tid,
		Authenticated: true,
	}
}

// BridgeDeps groups the collaborators of a Bridge.
type BridgeDeps struct {
	Mappings   MappingResolver
	Tenants    TenantLookup
	Namespaces NamespaceRunner
	Radius     RadiusAuthenticator
	Identities IdentityStore
	// NamespaceStore builds the per-tenant store on the namespace transaction.
	// Defaults to persistence.NewRadiusStore.
	NamespaceStore func(tx pgx.Tx) NamespaceStore
	// Jobs is optional; without it no bookkeeping jobs are queued.
	Jobs JobDispatcher
}

// BridgeConfig tunes a Bridge.
type BridgeConfig struct {
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Hosts refuses logins addressed to another tenant's host.
	Hosts   tenant.HostBinding
	Logger  *zap.Logger
	Metrics *metrics.Collectors
	Now     func() time.Time
}

// Bridge authenticates usernames that live in tenant namespaces.
type Bridge struct {
	deps    BridgeDeps
	cost    int
	hosts   tenant.HostBinding
	logger  *zap.Logger
	audit   *zap.Logger
	metrics *metrics.Collectors
	now     func() time.Time
	group   singleflight.Group
}

func NewBridge(deps BridgeDeps, cfg BridgeConfig) *Bridge {
	switch {
	case deps.Mappings == nil:
		panic("bridge requires mappings")
	case deps.Tenants == nil:
		panic("bridge requires tenants")
	case deps.Namespaces == nil:
		panic("bridge requires namespace runner")
	case deps.Radius == nil:
		panic("bridge requires radius authenticator")
	case deps.Identities == nil:
		panic("bridge requires identity store")
	}
	if deps.NamespaceStore == nil {
		deps.NamespaceStore = func(tx pgx.Tx) NamespaceStore { return persistence.NewRadiusStore(tx) }
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bridge{
		deps:    deps,
		cost:    cfg.BcryptCost,
		hosts:   cfg.Hosts,
		logger:  cfg.Logger.Named("auth"),
		audit:   logging.Audit(cfg.Logger),
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

// Authenticate resolves username to its tenant, exchanges the credentials with
// the RADIUS server inside the tenant namespace and, on Access-Accept, returns
// the local identity. When ctx carries a TenantContext it is set to the tenant.
func (b *Bridge) Authenticate(ctx context.Context, username, password string) (AcceptedIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		b.metrics.AuthAttempt(metrics.OutcomeRejected)
		return AcceptedIdentity{}, faults.ErrInvalidCredentials
	}

	id, tenantID, err := b.authenticate(ctx, username, password)
	b.metrics.AuthAttempt(outcomeFor(err))
	if err != nil {
		b.logFailure(username, tenantID, err)
		if tenantID != uuid.Nil && errors.Is(err, faults.ErrInvalidCredentials) {
			b.dispatch(jobs.Payload{Kind: JobFailedLogin, TenantID: tenantID, Data: map[string]string{dataUsername: username}})
		}
		return AcceptedIdentity{}, err
	}

	if holder, ok := tenant.FromContext(ctx); ok {
		holder.Set(id.TenantID)
	}

	b.dispatch(jobs.Payload{Kind: JobLoginStats, TenantID: id.TenantID, Data: map[string]string{
		dataUserID:     id.User.ID.String(),
		dataLoggedInAt: b.now().UTC().Format(time.RFC3339Nano),
	}})

	b.logger.Info("authentication accepted",
		zap.String("username", username),
		zap.String("tenant_id", id.TenantID.String()),
		zap.String("user_id", id.User.ID.String()),
		zap.Bool("created", id.Created),
	)
	return id, nil
}

// authenticate returns the tenant id whenever it was resolved so failures can
// be attributed to it.
func (b *Bridge) authenticate(ctx context.Context, username, password string) (AcceptedIdentity, uuid.UUID, error) {
	mapping, err := b.deps.Mappings.Resolve(ctx, username)
	if err != nil {
		if errors.Is(err, faults.ErrAmbiguousMapping) {
			b.audit.Error("ambiguous schema mapping", zap.String("username", username), zap.Error(err))
		}
		return AcceptedIdentity{}, uuid.Nil, err
	}

	rec, err := b.deps.Tenants.Get(tenantscope.WithoutTenant(ctx, "login: tenant lookup"), mapping.TenantID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return AcceptedIdentity{}, uuid.Nil, fmt.Errorf("%w: tenant %s", faults.ErrInactiveTenant, mapping.TenantID)
		}
		return AcceptedIdentity{}, uuid.Nil, fmt.Errorf("load tenant: %w", err)
	}
	if !rec.IsActive {
		return AcceptedIdentity{}, rec.ID, faults.ErrInactiveTenant
	}
	if rec.SchemaName != mapping.SchemaName {
		b.audit.Error("schema mapping does not match tenant",
			zap.String("username", username),
			zap.String("tenant_id", rec.ID.String()),
			zap.String("mapping_schema", mapping.SchemaName),
			zap.String("tenant_schema", rec.SchemaName),
		)
		return AcceptedIdentity{}, rec.ID, faults.ErrSchemaMismatch
	}

	var (
		replies    map[string]string
		tenantHost string
	)
	err = b.deps.Namespaces.WithTenant(ctx, rec.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		store := b.deps.NamespaceStore(tx)

		nasID, err := store.NASIdentifier(ctx)
		if err != nil {
			return err
		}

		resp, err := b.deps.Radius.Authenticate(ctx, radius.Request{
			Username:      username,
			Password:      password,
			NASIdentifier: nasID,
		})
		if err != nil {
			return err
		}

		if tenantHost, err = b.checkHost(ctx, username, rec); err != nil {
			return err
		}

		rows, err := store.ReplyAttributes(ctx, username)
		if err != nil {
			return err
		}
		replies = mergeReplyAttributes(rows, resp.Attributes)

		return store.RecordPostAuth(ctx, username, postAuthAccept)
	})
	if err != nil {
		return AcceptedIdentity{}, rec.ID, err
	}

	user, created, err := b.reconcile(ctx, rec.ID, username, password, mapping.UserRole)
	if err != nil {
		return AcceptedIdentity{}, rec.ID, err
	}
	if !user.IsActive {
		return AcceptedIdentity{}, rec.ID, faults.ErrInactiveIdentity
	}

	return AcceptedIdentity{
		User:            user,
		Role:            RoleFromMapping(user.Role),
		TenantID:        rec.ID,
		SchemaName:      rec.SchemaName,
		ReplyAttributes: replies,
		Created:         created,
		TenantHost:      tenantHost,
	}, rec.ID, nil
}

// checkHost refuses an accepted login addressed to another tenant's host.
// Logins on the main domain pass and return the host the client belongs on.
func (b *Bridge) checkHost(ctx context.Context, username string, rec persistence.TenantRecord) (string, error) {
	host, ok := tenant.HostFromContext(ctx)
	if !ok {
		return "", nil
	}
	label, bound := b.hosts.Label(host)
	switch {
	case !bound || label == rec.Slug:
		return "", nil
	case label == "":
		return b.hosts.TenantHost(rec.Slug), nil
	}
	b.audit.Warn("login on another tenant host",
		zap.String("username", username),
		zap.String("tenant_id", rec.ID.String()),
		zap.String("host", host),
	)
	return "", faults.ErrHostTenantMismatch
}

type reconciled struct {
	user    persistence.User
	created bool
}

// reconcile finds or creates the identity. Concurrent logins for the same
// username share one database round trip.
func (b *Bridge) reconcile(ctx context.Context, tenantID uuid.UUID, username, password, mappingRole string) (persistence.User, bool, error) {
	key := tenantID.String() + "|" + username
	v, err, _ := b.group.Do(key, func() (any, error) {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		tid := tenantID
		user, created, err := b.deps.Identities.FindOrCreate(
			tenantscope.WithoutTenant(ctx, "login: identity reconciliation"),
			persistence.CreateUserParams{
				TenantID:     &tid,
				Username:     username,
				PasswordHash: string(hash),
				Role:         string(RoleFromMapping(mappingRole)),
			},
		)
		if err != nil {
			return nil, fmt.Errorf("reconcile identity: %w", err)
		}
		return reconciled{user: user, created: created}, nil
	})
	if err != nil {
		return persistence.User{}, false, err
	}
	r := v.(reconciled)
	return r.user, r.created, nil
}

// RoleFromMapping maps a mapping's user_role to a tenant role. Unknown roles,
// including system_admin, fall back to user.
func RoleFromMapping(role string) platformauth.Role {
	switch platformauth.Role(strings.ToLower(strings.TrimSpace(role))) {
	case platformauth.RoleAdmin:
		return platformauth.RoleAdmin
	case platformauth.RoleHotspotUser:
		return platformauth.RoleHotspotUser
	default:
		return platformauth.RoleUser
	}
}

// mergeReplyAttributes overlays the live RADIUS reply on the stored radreply rows.
func mergeReplyAttributes(rows []persistence.RadiusAttribute, live map[string]string) map[string]string {
	out := make(map[string]string, len(rows)+len(live))
	for _, row := range rows {
		out[row.Attribute] = row.Value
	}
	for k, v := range live {
		out[k] = v
	}
	return out
}

func (b *Bridge) dispatch(p jobs.Payload) {
	if b.deps.Jobs == nil {
		return
	}
	if err := b.deps.Jobs.Dispatch(p); err != nil {
		b.logger.Warn("job not queued", zap.String("kind", p.Kind), zap.String("tenant_id", p.TenantID.String()), zap.Error(err))
	}
}

func (b *Bridge) logFailure(username string, tenantID uuid.UUID, err error) {
	fields := []zap.Field{zap.String("username", username), zap.Error(err)}
	if tenantID != uuid.Nil {
		fields = append(fields, zap.String("tenant_id", tenantID.String()))
	}
	switch {
	case faults.IsCredentialFault(err):
		b.logger.Info("authentication failed", fields...)
	case faults.Retryable(err):
		b.logger.Warn("authentication server unavailable", fields...)
	case faults.IsIntegrityFault(err):
		b.logger.Error("authentication integrity fault", fields...)
	case errors.Is(err, faults.ErrHostTenantMismatch):
		b.logger.Warn("authentication refused on host", fields...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		b.logger.Info("authentication abandoned", fields...)
	default:
		b.logger.Error("authentication error", fields...)
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeAccepted
	case faults.IsCredentialFault(err), errors.Is(err, faults.ErrHostTenantMismatch):
		return metrics.OutcomeRejected
	case faults.Retryable(err):
		return metrics.OutcomeUnavailable
	case faults.IsIntegrityFault(err):
		return metrics.OutcomeIntegrity
	default:
		return metrics.OutcomeError
	}
}
