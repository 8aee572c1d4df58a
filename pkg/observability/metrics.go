package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	PlanResolutionsTotal           *prometheus.CounterVec
	PlanFallbacksTotal             *prometheus.CounterVec
	QuotaChecksTotal               *prometheus.CounterVec
	CreditConsumptionsTotal        *prometheus.CounterVec
	SubscriptionChangesTotal       *prometheus.CounterVec
	PaymentValidationFailuresTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Janitor metrics
	JanitorRowsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapmeet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PlanResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_billing_plan_resolutions_total",
				Help: "Effective plan resolutions by source tier",
			},
			[]string{"source"},
		),
		PlanFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_billing_plan_fallbacks_total",
				Help: "Plan resolutions that degraded past a tier because of a storage error",
			},
			[]string{"tier"},
		),
		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_billing_quota_checks_total",
				Help: "Quota checks by credit type and outcome",
			},
			[]string{"credit_type", "can_use"},
		),
		CreditConsumptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_billing_credit_consumptions_total",
				Help: "Credit consumption attempts by credit type and result",
			},
			[]string{"credit_type", "result"},
		),
		SubscriptionChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_billing_subscription_changes_total",
				Help: "Subscription changes by action and plan",
			},
			[]string{"action", "plan"},
		),
		PaymentValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_billing_payment_validation_failures_total",
				Help: "Rejected payment forms by field",
			},
			[]string{"field"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_cache_hits_total",
				Help: "Cache hits by cache and tier",
			},
			[]string{"cache", "tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_cache_misses_total",
				Help: "Cache misses by cache",
			},
			[]string{"cache"},
		),
		JanitorRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapmeet_janitor_rows_total",
				Help: "Rows changed by janitor jobs",
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PlanResolutionsTotal,
		m.PlanFallbacksTotal,
		m.QuotaChecksTotal,
		m.CreditConsumptionsTotal,
		m.SubscriptionChangesTotal,
		m.PaymentValidationFailuresTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.JanitorRowsTotal,
	)

	return m
}

// RecordPlanResolution counts an effective plan resolution
func (m *Metrics) RecordPlanResolution(source string) {
	if m == nil {
		return
	}
	m.PlanResolutionsTotal.WithLabelValues(source).Inc()
}

// RecordPlanFallback counts a storage error that pushed resolution past a tier
func (m *Metrics) RecordPlanFallback(tier string) {
	if m == nil {
		return
	}
	m.PlanFallbacksTotal.WithLabelValues(tier).Inc()
}

// RecordQuotaCheck counts a quota check
func (m *Metrics) RecordQuotaCheck(creditType string, canUse bool) {
	if m == nil {
		return
	}
	m.QuotaChecksTotal.WithLabelValues(creditType, strconv.FormatBool(canUse)).Inc()
}

// RecordConsumption counts a consumption attempt; result is ok, quota_exceeded or error
func (m *Metrics) RecordConsumption(creditType, result string) {
	if m == nil {
		return
	}
	m.CreditConsumptionsTotal.WithLabelValues(creditType, result).Inc()
}

// RecordSubscriptionChange counts a subscribe or cancel
func (m *Metrics) RecordSubscriptionChange(action, plan string) {
	if m == nil {
		return
	}
	m.SubscriptionChangesTotal.WithLabelValues(action, plan).Inc()
}

// RecordPaymentValidationFailure counts a rejected payment form
func (m *Metrics) RecordPaymentValidationFailure(field string) {
	if m == nil {
		return
	}
	m.PaymentValidationFailuresTotal.WithLabelValues(field).Inc()
}

// RecordCacheHit counts a cache hit
func (m *Metrics) RecordCacheHit(cache, tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache, tier).Inc()
}

// RecordCacheMiss counts a cache miss
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordJanitorRows counts rows touched by a janitor job
func (m *Metrics) RecordJanitorRows(job string, rows int64) {
	if m == nil {
		return
	}
	m.JanitorRowsTotal.WithLabelValues(job).Add(float64(rows))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labeled by their mux route template, not the raw path.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
