package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPlanResolution("fallback")
		m.RecordPlanFallback("subscription")
		m.RecordQuotaCheck("listing", true)
		m.RecordConsumption("listing", "ok")
		m.RecordSubscriptionChange("subscribe", "pro")
		m.RecordPaymentValidationFailure("card_expiry")
		m.RecordCacheHit("plans", "l1")
		m.RecordCacheMiss("plans")
		m.RecordJanitorRows("expire", 3)
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordConsumption("listing", "ok")
	m.RecordConsumption("listing", "ok")
	m.RecordConsumption("listing", "quota_exceeded")
	m.RecordJanitorRows("expire", 4)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CreditConsumptionsTotal.WithLabelValues("listing", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CreditConsumptionsTotal.WithLabelValues("listing", "quota_exceeded")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.JanitorRowsTotal.WithLabelValues("expire")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/billing/quota/{type}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodPost)
	RegisterMetricsEndpoint(router, registry)

	req := httptest.NewRequest(http.MethodPost, "/billing/quota/listing", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/billing/quota/{type}", "418")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "swapmeet_http_requests_total"))
}
