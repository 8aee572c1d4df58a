package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/contextkeys"
	"github.com/platinummonkey/swapmeet/pkg/httputil"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// CreditConsumer spends credits. billing.Service satisfies it.
type CreditConsumer interface {
	ConsumeCredit(ctx context.Context, userID int64, ct billing.CreditType, listingID *int64) (billing.ConsumeResult, error)
}

// CreditGate charges one credit before letting a request through
type CreditGate struct {
	credits CreditConsumer
	logger  *observability.Logger
}

// NewCreditGate creates a credit gate
func NewCreditGate(credits CreditConsumer, logger *observability.Logger) *CreditGate {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CreditGate{credits: credits, logger: logger}
}

// Require returns middleware that consumes one ct credit per request.
// It must run after AuthMiddleware. A {listingID} route variable is recorded
// with the usage event.
func (g *CreditGate) Require(ct billing.CreditType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := contextkeys.GetUserID(r.Context())
			if !ok {
				httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:    httputil.CodeUnauthorized,
					Redirect: SignInPath(r.URL.RequestURI()),
				})
				return
			}

			result, err := g.credits.ConsumeCredit(r.Context(), userID, ct, listingIDFromRoute(r))
			if err != nil {
				if billing.IsQuotaExceeded(err) {
					httputil.WriteErrorCode(w, http.StatusPaymentRequired, httputil.CodeQuotaExceeded)
					return
				}
				observability.FromContext(r.Context()).WithError(err).
					WithField("credit_type", string(ct)).
					Error("credit gate failed")
				httputil.WriteInternalError(w)
				return
			}

			w.Header().Set("X-Credits-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func listingIDFromRoute(r *http.Request) *int64 {
	raw, ok := mux.Vars(r)["listingID"]
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
