package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/swapmeet/pkg/auth"
	"github.com/platinummonkey/swapmeet/pkg/contextkeys"
	"github.com/platinummonkey/swapmeet/pkg/httputil"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// SessionCookie carries the session token for browser callers
const SessionCookie = "swm_session"

// SignInPath builds the redirect sent with 401 responses
func SignInPath(next string) string {
	if next == "" {
		next = "/"
	}
	return "/signin?next=" + url.QueryEscape(next)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	identities auth.IdentityProvider
	logger     *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(identities auth.IdentityProvider, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &AuthMiddleware{identities: identities, logger: logger}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			m.unauthorizedResponse(w, r)
			return
		}

		identity, err := m.identities.Lookup(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				m.unauthorizedResponse(w, r)
				return
			}
			observability.FromContext(r.Context()).WithError(err).Error("identity lookup failed")
			httputil.WriteInternalError(w)
			return
		}
		if !identity.Active() {
			m.unauthorizedResponse(w, r)
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
		Error:    httputil.CodeUnauthorized,
		Redirect: SignInPath(r.URL.RequestURI()),
	})
}

// TokenFromRequest reads "Authorization: Bearer <token>", then the session cookie
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// GetIdentity extracts the authenticated identity from the request
func GetIdentity(r *http.Request) *auth.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}
