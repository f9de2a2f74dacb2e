package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/contracts"
	authhandler "github.com/traidnet/wificore/domains/auth/be/handler"
	authservice "github.com/traidnet/wificore/domains/auth/be/service"
	packageshandler "github.com/traidnet/wificore/domains/packages/be/handler"
	packagesservice "github.com/traidnet/wificore/domains/packages/be/service"
	paymentshandler "github.com/traidnet/wificore/domains/payments/be/handler"
	paymentsservice "github.com/traidnet/wificore/domains/payments/be/service"
	subscriptionshandler "github.com/traidnet/wificore/domains/subscriptions/be/handler"
	subscriptionsservice "github.com/traidnet/wificore/domains/subscriptions/be/service"
	tenantshandler "github.com/traidnet/wificore/domains/tenants/be/handler"
	tenantsprov "github.com/traidnet/wificore/domains/tenants/be/provisioning"
	tenantsrepo "github.com/traidnet/wificore/domains/tenants/be/repo"
	tenantsservice "github.com/traidnet/wificore/domains/tenants/be/service"
	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/guard"
	"github.com/traidnet/wificore/platform/go/jobs"
	platformlogging "github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/metrics"
	platformmiddleware "github.com/traidnet/wificore/platform/go/middleware"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/radius"
	"github.com/traidnet/wificore/platform/go/ratelimit"
	"github.com/traidnet/wificore/platform/go/tenant"
	tenantmiddleware "github.com/traidnet/wificore/platform/go/tenant/middleware"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	SystemSchema    string        `env:"SYSTEM_SCHEMA" envDefault:"public"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`

	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`

	TenantBaseDomain string `env:"TENANT_BASE_DOMAIN"` // host binding disabled when empty

	RadiusHost          string        `env:"RADIUS_SERVER_HOST" envDefault:"traidnet-freeradius"`
	RadiusPort          int           `env:"RADIUS_SERVER_PORT" envDefault:"1812"`
	RadiusSecret        string        `env:"RADIUS_SECRET,required"`
	RadiusTimeout       time.Duration `env:"RADIUS_TIMEOUT" envDefault:"4s"`
	RadiusNASIP         string        `env:"RADIUS_NAS_IP" envDefault:"127.0.0.1"`
	RadiusNASIdentifier string        `env:"RADIUS_NAS_IDENTIFIER" envDefault:"wificore"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"wificore"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"12h"`

	RedisURL                 string        `env:"REDIS_URL"` // throttle disabled when empty
	LoginMaxAttempts         int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginUsernameMaxAttempts int           `env:"LOGIN_USERNAME_MAX_ATTEMPTS" envDefault:"20"`
	LoginAttemptWindow       time.Duration `env:"LOGIN_ATTEMPT_WINDOW" envDefault:"60s"`

	JobWorkers     int  `env:"JOB_WORKERS" envDefault:"4"`
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	trustedProxies, err := platformmiddleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("parse trusted proxies", zap.Error(err))
	}

	doc, err := contracts.Load()
	if err != nil {
		logger.Fatal("load api contract", zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		SystemSchema:    cfg.SystemSchema,
		ApplicationName: "wificore-api",
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.BootstrapPlatformSchema(ctx, pool, cfg.SystemSchema); err != nil {
		logger.Fatal("bootstrap platform schema", zap.Error(err))
	}

	var collectors *metrics.Collectors
	if cfg.MetricsEnabled {
		collectors = metrics.New(prometheus.DefaultRegisterer)
	}

	scope := tenantscope.New(logger)
	tenantGuard := guard.New(logger, collectors)

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:         pool,
		SystemSchema: cfg.SystemSchema,
		Logger:       logger,
	})

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	mappingStore, err := persistence.NewSchemaMappingStore(pool)
	if err != nil {
		logger.Fatal("init schema mapping store", zap.Error(err))
	}
	userStore, err := persistence.NewUserStore(pool, scope)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}
	catalogStore, err := persistence.NewCatalogStore(pool, scope)
	if err != nil {
		logger.Fatal("init catalog store", zap.Error(err))
	}
	billingStore, err := persistence.NewBillingStore(pool, scope)
	if err != nil {
		logger.Fatal("init billing store", zap.Error(err))
	}

	tenantRepo := tenantsrepo.NewPostgresRepository(pool, tenantStore, logger)
	dbProv := tenantsprov.NewDBProvisioner(pool, tenantDB, logger)
	tenantService := tenantsservice.New(tenantRepo, dbProv, logger)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	jobRunner := jobs.NewRunner(tenantService, logger, collectors)
	dispatcher := jobs.NewDispatcher(jobRunner, jobs.DispatcherConfig{Workers: cfg.JobWorkers}, logger)
	authservice.RegisterJobs(dispatcher, userStore)
	dispatcher.Start(ctx)

	radiusClient, err := radius.NewClient(radius.Config{
		Host:          cfg.RadiusHost,
		Port:          cfg.RadiusPort,
		Secret:        cfg.RadiusSecret,
		Timeout:       cfg.RadiusTimeout,
		NASIP:         cfg.RadiusNASIP,
		NASIdentifier: cfg.RadiusNASIdentifier,
	}, logger, collectors)
	if err != nil {
		logger.Fatal("init radius client", zap.Error(err))
	}

	hosts := tenant.HostBinding{BaseDomain: cfg.TenantBaseDomain}
	bridge := authservice.NewBridge(authservice.BridgeDeps{
		Mappings:   mappingStore,
		Tenants:    tenantStore,
		Namespaces: tenantDB,
		Radius:     radiusClient,
		Identities: userStore,
		Jobs:       dispatcher,
	}, authservice.BridgeConfig{Hosts: hosts, Logger: logger, Metrics: collectors})

	issuer, err := platformauth.NewIssuer(platformauth.IssuerConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})
	if err != nil {
		logger.Fatal("init jwt issuer", zap.Error(err))
	}

	addrThrottle, userThrottle := buildThrottles(ctx, cfg, logger)
	authHTTPHandler := authhandler.New(authhandler.Deps{
		Auth:         bridge,
		Tokens:       issuer,
		Throttle:     addrThrottle,
		UserThrottle: userThrottle,
		Users:        userStore,
		Metrics:      collectors,
	}, logger)

	packagesHTTPHandler := packageshandler.New(packagesservice.New(catalogStore, tenantGuard, logger), logger)
	subscriptionsHTTPHandler := subscriptionshandler.New(
		subscriptionsservice.New(catalogStore, userStore, billingStore, tenantGuard, logger), logger)
	paymentsHTTPHandler := paymentshandler.New(
		paymentsservice.New(catalogStore, userStore, billingStore, tenantGuard, logger), logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		platformmiddleware.RealIP(trustedProxies),
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSOrigins),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readyHandler(pool))
	if cfg.MetricsEnabled {
		rootRouter.Handle("/metrics", promhttp.Handler())
	}

	apiRouter := chi.NewRouter()
	apiRouter.Use(buildAuthMiddleware(issuer))
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(platformmiddleware.SpecValidator(doc))

	apiRouter.Group(authHTTPHandler.PublicRoutes)

	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireAuthenticated)
		r.Use(tenantmiddleware.WithTenantContext(tenantService, tenantmiddleware.Config{
			CacheTTL: time.Minute,
			Hosts:    hosts,
			Logger:   logger,
		}))

		authHTTPHandler.Routes(r)
		packagesHTTPHandler.Routes(r)
		subscriptionsHTTPHandler.Routes(r)
		paymentsHTTPHandler.Routes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(platformauth.RequireRole(platformauth.RoleSystemAdmin))
			r.Route("/tenants", func(r chi.Router) {
				tenantHTTPHandler.Routes(r)
				packagesHTTPHandler.AdminRoutes(r)
			})
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("job dispatcher drain failed", zap.Error(err))
	}
}

// buildThrottles returns the per-address and per-username login limiters. Both
// are nil when REDIS_URL is unset, which disables login throttling.
func buildThrottles(ctx context.Context, cfg config, logger *zap.Logger) (*ratelimit.Limiter, *ratelimit.Limiter) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("REDIS_URL not set; login throttling disabled")
		return nil, nil
	}
	client, err := ratelimit.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("init redis client", zap.Error(err))
	}
	byAddress, err := ratelimit.New(client, ratelimit.Config{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginAttemptWindow,
	})
	if err != nil {
		logger.Fatal("init login throttle", zap.Error(err))
	}
	byUsername, err := ratelimit.New(client, ratelimit.Config{
		MaxAttempts: cfg.LoginUsernameMaxAttempts,
		Window:      cfg.LoginAttemptWindow,
	})
	if err != nil {
		logger.Fatal("init username login throttle", zap.Error(err))
	}
	return byAddress, byUsername
}

func readyHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
