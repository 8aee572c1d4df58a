package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/swapmeet/pkg/auth"
	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/config"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run every job once and exit")
	logLevel = flag.String("log-level", getEnv("SWAPMEET_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	timeout  = flag.Duration("job-timeout", 5*time.Minute, "Upper bound for a single janitor pass")
)

type jobs struct {
	janitor  *billing.Janitor
	sessions *auth.PostgresSessionStore
	grace    time.Duration
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

func main() {
	flag.Parse()
	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := connectDatabase(cfg.Storage.PostgresURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := billing.NewPostgresStoreFromDB(db)
	var pruner billing.UsagePruner = store
	if cfg.Billing.UsageBackend == config.UsageBackendRedis {
		// redis counters carry their own TTL
		pruner = nil
	}

	registry := prometheus.NewRegistry()
	j := &jobs{
		janitor:  billing.NewJanitor(store, pruner, nil, cfg.Billing.UsageRetention),
		sessions: auth.NewPostgresSessionStore(db, nil),
		grace:    cfg.Billing.SessionGrace,
		logger:   logger,
		metrics:  observability.NewMetrics(registry),
	}

	if *runOnce {
		if err := j.runAll(); err != nil {
			logger.Fatalf("Janitor pass failed: %v", err)
		}
		logger.Info("Janitor pass completed")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Billing.JanitorSchedule, func() {
		if err := j.runAll(); err != nil {
			logger.WithError(err).Error("Janitor pass failed")
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule janitor: %v", err)
	}

	router := mux.NewRouter()
	observability.RegisterMetricsEndpoint(router, registry)
	metricsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()

	c.Start()
	logger.WithField("schedule", cfg.Billing.JanitorSchedule).Info("swapmeet janitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}

	logger.Info("Janitor stopped")
}

// runAll runs each job even when an earlier one fails and returns the first error
func (j *jobs) runAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var firstErr error
	record := func(job string, rows int64, err error) {
		entry := j.logger.WithField("job", job)
		if err != nil {
			entry.WithError(err).Error("job failed")
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		j.metrics.RecordJanitorRows(job, rows)
		entry.WithField("rows", rows).Info("job finished")
	}

	n, err := j.janitor.ExpireLapsedSubscriptions(ctx)
	record("expire-subscriptions", n, err)

	n, err = j.janitor.PruneUsage(ctx)
	record("prune-usage", n, err)

	n, err = j.sessions.PruneExpired(ctx, time.Now().Add(-j.grace))
	record("prune-sessions", n, err)

	return firstErr
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
