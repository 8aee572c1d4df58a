// Package observability provides structured logging, Prometheus metrics, health checks and tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Info("credit consumed")
//
// Request-scoped logging picks up the request and user ids stored by the
// HTTP middleware:
//
//	observability.FromContext(ctx).WithError(err).Error("plan resolution degraded")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordConsumption("listing", "ok")
//
// All Record* helpers are safe on a nil *Metrics so library code can run
// without a registry.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(router, checker)
//
// # Tracing
//
// InitTracing installs an OTLP gRPC exporter as the global tracer provider.
// Packages create spans through otel.Tracer.
package observability
