package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/contextkeys"
	"github.com/platinummonkey/swapmeet/pkg/httputil"
	"github.com/platinummonkey/swapmeet/pkg/middleware"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// BillingHandlers handles billing-related HTTP requests
type BillingHandlers struct {
	billingService billing.Service
	throttle       func(http.Handler) http.Handler
}

// NewBillingHandlers creates a new BillingHandlers. throttle, when non-nil,
// wraps the credit and subscription mutations.
func NewBillingHandlers(billingService billing.Service, throttle func(http.Handler) http.Handler) *BillingHandlers {
	return &BillingHandlers{
		billingService: billingService,
		throttle:       throttle,
	}
}

// RegisterPublicRoutes registers the routes a signed-out pricing page needs
func (h *BillingHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/plans", h.ListPlans).Methods(http.MethodGet)
}

// RegisterRoutes registers the per-user billing routes on a router already
// scoped to /billing and behind authentication
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
	router.HandleFunc("/quota/{type}", h.CheckQuota).Methods(http.MethodPost)
	router.Handle("/use-credit", h.throttled(h.UseCredit)).Methods(http.MethodPost)
	router.Handle("/subscribe/{planCode}", h.throttled(h.Subscribe)).Methods(http.MethodPost)
	router.HandleFunc("/cancel", h.Cancel).Methods(http.MethodPost)
}

func (h *BillingHandlers) throttled(fn http.HandlerFunc) http.Handler {
	if h.throttle == nil {
		return fn
	}
	return h.throttle(fn)
}

// PlansResponse is the body of GET /billing/plans
type PlansResponse struct {
	OK    bool           `json:"ok"`
	Plans []billing.Plan `json:"plans"`
}

type plansUnavailableResponse struct {
	httputil.ErrorResponse
	Plans []billing.Plan `json:"plans"`
}

// MeResponse is the body of GET /billing/me
type MeResponse struct {
	OK           bool                         `json:"ok"`
	Subscription *billing.SubscriptionSummary `json:"subscription"`
	Plan         billing.Plan                 `json:"effective_plan"`
}

// UseCreditRequest is the body of POST /billing/use-credit
type UseCreditRequest struct {
	Type      string `json:"type"`
	ListingID *int64 `json:"listing_id,omitempty"`
}

// UseCreditResponse is the body of a successful POST /billing/use-credit
type UseCreditResponse struct {
	OK        bool `json:"ok"`
	Remaining int  `json:"remaining"`
}

// SubscribeRequest is the body of POST /billing/subscribe/{planCode}
type SubscribeRequest struct {
	PaymentData billing.PaymentData `json:"payment_data"`
}

// OKResponse acknowledges a mutation
type OKResponse struct {
	OK bool `json:"ok"`
}

// ListPlans handles GET /billing/plans
func (h *BillingHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.billingService.ListPlans(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list plans")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, plansUnavailableResponse{
			ErrorResponse: httputil.ErrorResponse{Error: httputil.CodeCatalogUnavailable},
			Plans:         []billing.Plan{},
		})
		return
	}
	if plans == nil {
		plans = []billing.Plan{}
	}

	httputil.WriteJSON(w, http.StatusOK, PlansResponse{OK: true, Plans: plans})
}

// GetMe handles GET /billing/me. Resolution never fails the request.
func (h *BillingHandlers) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	effective := h.billingService.GetEffectivePlan(r.Context(), userID)
	httputil.WriteJSON(w, http.StatusOK, MeResponse{
		OK:           true,
		Subscription: effective.Subscription,
		Plan:         effective.Plan,
	})
}

// CheckQuota handles POST /billing/quota/{type}
func (h *BillingHandlers) CheckQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	ct, err := billing.ParseCreditType(mux.Vars(r)["type"])
	if err != nil {
		writeBillingError(w, r, err)
		return
	}

	status, err := h.billingService.CheckQuota(r.Context(), userID, ct)
	if err != nil {
		writeBillingError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// UseCredit handles POST /billing/use-credit
func (h *BillingHandlers) UseCredit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req UseCreditRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ct, err := billing.ParseCreditType(req.Type)
	if err != nil {
		writeBillingError(w, r, err)
		return
	}

	result, err := h.billingService.ConsumeCredit(r.Context(), userID, ct, req.ListingID)
	if err != nil {
		writeBillingError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, UseCreditResponse{OK: true, Remaining: result.Remaining})
}

// Subscribe handles POST /billing/subscribe/{planCode}
func (h *BillingHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	planCode, ok := httputil.ParsePathStringOrError(w, r, "planCode")
	if !ok {
		return
	}

	var req SubscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if _, err := h.billingService.Subscribe(r.Context(), userID, planCode, req.PaymentData); err != nil {
		writeBillingError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Cancel handles POST /billing/cancel
func (h *BillingHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.billingService.Cancel(r.Context(), userID); err != nil {
		writeBillingError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

// requireUserID reads the caller set by AuthMiddleware
func requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error:    httputil.CodeUnauthorized,
			Redirect: middleware.SignInPath(r.URL.RequestURI()),
		})
		return 0, false
	}
	return userID, true
}

// writeBillingError maps billing errors onto the wire envelope
func writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *billing.ValidationError

	switch {
	case billing.IsQuotaExceeded(err):
		httputil.WriteErrorCode(w, http.StatusPaymentRequired, httputil.CodeQuotaExceeded)
	case errors.As(err, &validationErr):
		httputil.WriteErrorResponse(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:   httputil.CodeInvalidPayment,
			Field:   validationErr.Field,
			Message: validationErr.Message,
		})
	case errors.Is(err, billing.ErrInvalidCreditType):
		httputil.WriteErrorResponse(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:   httputil.CodeInvalidCreditType,
			Message: "credit type must be listing, bump or feature",
		})
	case errors.Is(err, billing.ErrPlanNotFound):
		httputil.WriteErrorResponse(w, http.StatusNotFound, httputil.ErrorResponse{
			Error:   httputil.CodePlanNotFound,
			Message: "that plan is not available",
		})
	case errors.Is(err, billing.ErrAlreadyOnPlan):
		httputil.WriteErrorResponse(w, http.StatusConflict, httputil.ErrorResponse{
			Error:   httputil.CodeAlreadyOnPlan,
			Message: "you are already on this plan",
		})
	case errors.Is(err, billing.ErrNoActiveSubscription):
		httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeNoSubscription)
	case errors.Is(err, billing.ErrSubscriptionConflict):
		httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeConflict)
	case errors.Is(err, billing.ErrCatalogUnavailable):
		observability.FromContext(r.Context()).WithError(err).Warn("plan catalog unavailable")
		httputil.WriteErrorCode(w, http.StatusServiceUnavailable, httputil.CodeCatalogUnavailable)
	default:
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("billing request failed")
		httputil.WriteInternalError(w)
	}
}
