package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/swapmeet/pkg/auth"
	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/httputil"
	"github.com/platinummonkey/swapmeet/pkg/middleware"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 64 << 10

// ServerConfig collects the collaborators of the API server.
// Billing and Identities are required; everything else is optional.
type ServerConfig struct {
	Billing    billing.Service
	Identities auth.IdentityProvider
	Logger     *observability.Logger
	Metrics    *observability.Metrics

	// Sessions enables POST /auth/signout when set.
	Sessions SessionRevoker

	// CreditLimiter throttles credit and subscription mutations per user.
	CreditLimiter middleware.Limiter

	// Health and Gatherer enable /health* and /metrics when set.
	Health   *observability.HealthChecker
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	RequestTimeout time.Duration
	ServiceName    string
}

// Server represents our API server
type Server struct {
	router         *mux.Router
	logger         *observability.Logger
	metrics        *observability.Metrics
	allowedOrigins []string
	requestTimeout time.Duration
	serviceName    string
	handler        http.Handler
}

// NewServer creates a new API server with every route registered
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "swapmeet-api"
	}

	s := &Server{
		router:         mux.NewRouter(),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		allowedOrigins: cfg.AllowedOrigins,
		requestTimeout: cfg.RequestTimeout,
		serviceName:    cfg.ServiceName,
	}

	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	s.setupRoutes(cfg)
	s.handler = s.buildHandler()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg ServerConfig) {
	if cfg.Health != nil {
		observability.RegisterHealthRoutes(s.router, cfg.Health)
	}
	if cfg.Gatherer != nil {
		observability.RegisterMetricsEndpoint(s.router, cfg.Gatherer)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.Identities, s.logger)

	var throttle func(http.Handler) http.Handler
	if cfg.CreditLimiter != nil {
		throttle = middleware.NewRateLimitMiddleware(cfg.CreditLimiter, s.logger).Handler
	}

	billingHandlers := NewBillingHandlers(cfg.Billing, throttle)
	billingRouter := s.router.PathPrefix("/billing").Subrouter()
	billingRouter.Use(httputil.MaxBytesMiddleware(maxBodyBytes))
	billingHandlers.RegisterPublicRoutes(billingRouter)

	accountRouter := billingRouter.NewRoute().Subrouter()
	accountRouter.Use(authMiddleware.Handler)
	s.RegisterRoutes(accountRouter, billingHandlers)

	authRouter := s.router.PathPrefix("/auth").Subrouter()
	authRouter.Use(authMiddleware.Handler)
	s.RegisterRoutes(authRouter, NewAuthHandlers(cfg.Sessions, cfg.Identities))
}

// Handler returns the router wrapped in the shared middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	}
	if len(s.allowedOrigins) > 0 {
		chain = append(chain, httputil.CORSMiddleware(s.allowedOrigins))
	}
	if s.requestTimeout > 0 {
		chain = append(chain, httputil.TimeoutMiddleware(s.requestTimeout))
	}

	return otelhttp.NewHandler(httputil.Chain(chain...)(s.router), s.serviceName)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router so other services can mount routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(router *mux.Router, registrar RouteRegistrar) {
	registrar.RegisterRoutes(router)
}
