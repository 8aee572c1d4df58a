package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/swapmeet/pkg/auth"
	"github.com/platinummonkey/swapmeet/pkg/httputil"
	"github.com/platinummonkey/swapmeet/pkg/middleware"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// SessionRevoker ends a session server-side
type SessionRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// tokenForgetter is implemented by identity providers that cache lookups
type tokenForgetter interface {
	Forget(token string)
}

// AuthHandlers exposes the authenticated caller and sign out
type AuthHandlers struct {
	sessions SessionRevoker
	cache    tokenForgetter
}

// NewAuthHandlers creates a new auth handlers instance. Sign out is only
// registered when sessions is non-nil; identities is checked for a cache to
// evict.
func NewAuthHandlers(sessions SessionRevoker, identities auth.IdentityProvider) *AuthHandlers {
	h := &AuthHandlers{sessions: sessions}
	if cache, ok := identities.(tokenForgetter); ok {
		h.cache = cache
	}
	return h
}

// RegisterRoutes registers authentication routes on a router scoped to /auth
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.getMe).Methods(http.MethodGet)
	if h.sessions != nil {
		router.HandleFunc("/signout", h.signOut).Methods(http.MethodPost)
	}
}

// getMe handles GET /auth/me
func (h *AuthHandlers) getMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error:    httputil.CodeUnauthorized,
			Redirect: middleware.SignInPath(r.URL.RequestURI()),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, identity)
}

// signOut handles POST /auth/signout
func (h *AuthHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)

	// revoke before evicting so a concurrent lookup cannot re-cache a live session
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to revoke session")
		httputil.WriteInternalError(w)
		return
	}
	if h.cache != nil {
		h.cache.Forget(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
