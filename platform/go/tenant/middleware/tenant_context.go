package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	platformlogging "github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/problems"
	"github.com/traidnet/wificore/platform/go/tenant"
)

// Resolver confirms that a tenant exists and is active and returns its slug.
// Unknown and inactive tenants must both match faults.ErrInactiveTenant.
// Implemented by the tenant registry service.
type Resolver interface {
	ActiveTenantSlug(ctx context.Context, id uuid.UUID) (string, error)
}

// Config controls middleware behavior.
type Config struct {
	// Optional small in-memory TTL cache to avoid DB hits; zero disables caching.
	CacheTTL time.Duration
	// Hosts binds tenant callers to their own subdomain. The zero value disables it.
	Hosts  tenant.HostBinding
	Logger *zap.Logger
}

// WithTenantContext begins a TenantContext for the request, sets it to the
// authenticated caller's tenant and clears it once the handler returns.
// Requests for an inactive or unknown tenant are refused as an authentication
// failure. Tenant callers addressing another tenant's host, or the main domain,
// are refused with 403; callers without a tenant may use any host.
func WithTenantContext(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var cache *tenantCache
	if cfg.CacheTTL > 0 {
		cache = newTenantCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, holder := tenant.Begin(r.Context())
			defer holder.Clear()

			caller, _ := platformauth.CallerFromContext(ctx)
			tid, ok := caller.Tenant()
			if !ok {
				// System administrators and pre-auth requests run without a tenant.
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			slug, fresh := cache.get(tid)
			if !fresh {
				var err error
				slug, err = resolver.ActiveTenantSlug(ctx, tid)
				if err != nil {
					logger := platformlogging.FromRequest(r, cfg.Logger)
					logger.Info("request for unavailable tenant", zap.String("tenant_id", tid.String()), zap.Error(err))

					p, known := problems.FromFault(err)
					if !known {
						p = problems.Internal()
					}
					problems.Write(w, p)
					return
				}
				cache.put(tid, slug)
			}

			if label, bound := cfg.Hosts.Label(r.Host); bound && label != slug {
				platformlogging.Audit(platformlogging.FromRequest(r, cfg.Logger)).Warn("tenant host mismatch",
					zap.String("tenant_id", tid.String()),
					zap.String("user_id", caller.UserID.String()),
					zap.String("host", r.Host),
					zap.String("expected_host", cfg.Hosts.TenantHost(slug)),
				)
				p, _ := problems.FromFault(faults.ErrHostTenantMismatch)
				problems.Write(w, p)
				return
			}

			holder.Set(tid)
			ctx = platformlogging.With(ctx, cfg.Logger, zap.String("tenant_id", tid.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type cachedTenant struct {
	slug      string
	expiresAt time.Time
}

type tenantCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[uuid.UUID]cachedTenant
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{ttl: ttl, items: make(map[uuid.UUID]cachedTenant)}
}

func (c *tenantCache) get(id uuid.UUID) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok || !time.Now().Before(item.expiresAt) {
		return "", false
	}
	return item.slug, true
}

func (c *tenantCache) put(id uuid.UUID, slug string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = cachedTenant{slug: slug, expiresAt: time.Now().Add(c.ttl)}
}
