package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/swapmeet/pkg/billing"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_CurrentUserCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/me", r.URL.Path)
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer swm_tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"ok": false, "error": "unauthorized", "redirect": "/signin?next=%2Fauth%2Fme",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": 7, "email": "ada@example.com", "full_name": "Ada", "status": "active",
		})
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	c := NewClient(Config{BaseURL: srv.URL + "/", Token: "swm_tok", Clock: clock})
	ctx := context.Background()

	identity, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), identity.ID)
	assert.Equal(t, "Ada", identity.FullName)

	_, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup within TTL is served from cache")

	clock.Advance(DefaultCacheTTL + time.Second)
	_, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	c.InvalidateCurrentUser()
	_, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	c.Logout()
	_, err = c.CurrentUser(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	redirect, ok := SignInRedirect(err)
	require.True(t, ok)
	assert.Equal(t, "/signin?next=%2Fauth%2Fme", redirect)
	assert.Equal(t, int32(4), hits.Load())
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]interface{}
		check  func(t *testing.T, err error)
	}{
		{
			name:   "quota exceeded",
			status: http.StatusPaymentRequired,
			body:   map[string]interface{}{"ok": false, "error": "quota_exceeded"},
			check: func(t *testing.T, err error) {
				var qe *billing.QuotaExceededError
				require.True(t, errors.As(err, &qe))
				assert.Equal(t, billing.CreditBump, qe.CreditType)
			},
		},
		{
			name:   "invalid payment",
			status: http.StatusBadRequest,
			body:   map[string]interface{}{"ok": false, "error": "invalid_payment", "field": "card_cvv", "message": "CVV must be exactly 3 digits"},
			check: func(t *testing.T, err error) {
				var ve *billing.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "card_cvv", ve.Field)
				assert.Equal(t, "CVV must be exactly 3 digits", ve.Message)
			},
		},
		{
			name:   "plan not found",
			status: http.StatusNotFound,
			body:   map[string]interface{}{"ok": false, "error": "plan_not_found"},
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, billing.ErrPlanNotFound) },
		},
		{
			name:   "already on plan",
			status: http.StatusConflict,
			body:   map[string]interface{}{"ok": false, "error": "already_on_plan"},
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, billing.ErrAlreadyOnPlan) },
		},
		{
			name:   "catalog unavailable",
			status: http.StatusServiceUnavailable,
			body:   map[string]interface{}{"ok": false, "error": "catalog_unavailable", "plans": []interface{}{}},
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, billing.ErrCatalogUnavailable) },
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]interface{}{"ok": false, "error": "server_error"},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
				assert.Equal(t, "server_error", apiErr.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, Token: "swm_tok"})
			_, err := c.UseCredit(context.Background(), billing.CreditBump, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_BillingCalls(t *testing.T) {
	var useCreditBody map[string]interface{}
	var subscribeBody map[string]map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/billing/plans", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"plans": []billing.Plan{{Code: "free", ListingQuota: 5}, {Code: "pro", ListingQuota: 9999}},
		})
	})
	mux.HandleFunc("/billing/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":             true,
			"subscription":   nil,
			"effective_plan": billing.Plan{Code: "free", ListingQuota: 5},
		})
	})
	mux.HandleFunc("/billing/quota/listing", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, billing.QuotaStatus{CanUse: true, Remaining: 4, Quota: 5})
	})
	mux.HandleFunc("/billing/use-credit", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&useCreditBody))
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "remaining": 3})
	})
	mux.HandleFunc("/billing/subscribe/pro", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&subscribeBody))
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	})
	mux.HandleFunc("/billing/cancel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"ok": false, "error": "no_active_subscription"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "swm_tok"})
	ctx := context.Background()

	plans, err := c.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "pro", plans[1].Code)

	me, err := c.EffectivePlan(ctx)
	require.NoError(t, err)
	assert.Nil(t, me.Subscription)
	assert.Equal(t, "free", me.Plan.Code)

	status, err := c.CheckQuota(ctx, billing.CreditListing)
	require.NoError(t, err)
	assert.Equal(t, billing.QuotaStatus{CanUse: true, Remaining: 4, Quota: 5}, status)

	listingID := int64(99)
	remaining, err := c.UseCredit(ctx, billing.CreditListing, &listingID)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
	assert.Equal(t, "listing", useCreditBody["type"])
	assert.Equal(t, float64(99), useCreditBody["listing_id"])

	err = c.Subscribe(ctx, "pro", billing.PaymentData{CardNumber: "4111111111111111", CardExpiry: "12/29", CardCVV: "123", CardName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", subscribeBody["payment_data"]["card_number"])
	assert.Equal(t, "12/29", subscribeBody["payment_data"]["card_expiry"])

	assert.ErrorIs(t, c.Cancel(ctx), billing.ErrNoActiveSubscription)
}

func TestClient_PathSegmentsAreEscaped(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		if r.URL.EscapedPath() == "/billing/quota/listing%2Fextra" {
			writeJSON(w, http.StatusOK, billing.QuotaStatus{Quota: 5})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "swm_tok"})
	ctx := context.Background()

	require.NoError(t, c.Subscribe(ctx, "pro/../cancel", billing.PaymentData{}))
	_, err := c.CheckQuota(ctx, billing.CreditType("listing/extra"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/billing/subscribe/pro%2F..%2Fcancel",
		"/billing/quota/listing%2Fextra",
	}, paths)
}
