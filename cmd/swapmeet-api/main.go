package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/swapmeet/pkg/api"
	"github.com/platinummonkey/swapmeet/pkg/async"
	"github.com/platinummonkey/swapmeet/pkg/auth"
	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/config"
	"github.com/platinummonkey/swapmeet/pkg/middleware"
	"github.com/platinummonkey/swapmeet/pkg/observability"
	"github.com/platinummonkey/swapmeet/pkg/storage"
	"github.com/platinummonkey/swapmeet/pkg/storage/postgres"
)

var version = "dev"

func main() {
	migrate := flag.Bool("migrate", true, "Create missing tables before serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger, *migrate); err != nil {
		logger.WithError(err).Error("swapmeet-api exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, migrate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    1.0,
	}, logger)
	if err != nil {
		return err
	}
	if tp != nil {
		shutdown.RegisterShutdownFunc(tp.Shutdown)
	}

	conns, err := postgres.NewConnectionManager(postgres.ConfigFromStorage(cfg.Storage), logger)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return conns.Close() })
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	redisClient, err := storage.NewRedisClient(ctx, cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrRedisDisabled):
		logger.Info("Redis not configured; using in-process cache and rate limits")
	case err != nil:
		return err
	default:
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	store := billing.NewPostgresStore(conns)
	sessions := auth.NewPostgresSessionStore(conns.Primary(), nil)

	if migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := sessions.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	if cfg.Billing.PlansFile != "" {
		plans, err := billing.LoadPlanSeedFile(cfg.Billing.PlansFile)
		if err != nil {
			return err
		}
		if err := store.UpsertPlans(ctx, plans); err != nil {
			return err
		}
		logger.WithField("plans", len(plans)).Info("Plan catalog seeded")
	}

	catalog := billing.NewCachedPlanStore(store, redisClient, cfg.Billing.CatalogCacheSize, cfg.Billing.CatalogCacheTTL, logger, metrics)
	if cfg.Billing.PlansFile != "" {
		catalog.Invalidate(ctx)
	}

	var usage billing.UsageStore = store
	if cfg.Billing.UsageBackend == config.UsageBackendRedis {
		usage = billing.NewRedisUsageStore(redisClient, "swapmeet:usage", cfg.Billing.UsageTTL)
	}

	service := billing.NewService(catalog, store, usage, billing.ServiceConfig{
		DefaultListingQuota: cfg.Billing.DefaultListingQuota,
		Logger:              logger,
		Metrics:             metrics,
	})

	identities := auth.NewCachedIdentityProvider(sessions, cfg.Billing.SessionCacheSize, cfg.Billing.SessionCacheTTL)

	server := api.NewServer(api.ServerConfig{
		Billing:        service,
		Identities:     identities,
		Sessions:       sessions,
		Logger:         logger,
		Metrics:        metrics,
		CreditLimiter:  creditLimiter(ctx, cfg, redisClient, logger),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Observability.OTelServiceName,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.RegisterServer(apiServer)

	healthRouter := mux.NewRouter()
	checker := observability.NewHealthChecker(conns.Primary(), redisClient).
		WithDatabaseCheck(conns).
		WithVersion(version)
	observability.RegisterHealthRoutes(healthRouter, checker)
	observability.RegisterMetricsEndpoint(healthRouter, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdown.RegisterServer(healthServer)

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			logger.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				cancel()
			}
		}(srv)
	}

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// creditLimiter shares limits across replicas when Redis is available
func creditLimiter(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *observability.Logger) middleware.Limiter {
	limits := middleware.CreditRateLimitConfig(cfg.Billing.CreditRateLimitPerMinute)
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, limits, "swapmeet:ratelimit")
	}

	limiter := middleware.NewRateLimiter(limits, nil)
	async.Every(ctx, logger, limits.WindowDuration, "ratelimit-cleanup", func(context.Context) {
		limiter.Cleanup()
	})
	return limiter
}
