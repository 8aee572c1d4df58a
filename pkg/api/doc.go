// Package api provides the HTTP REST API server for the swapmeet billing service.
//
// # Overview
//
// This package exposes plan catalog reads, effective plan resolution, credit
// quota checks and consumption, and subscription changes as JSON endpoints.
// /billing/plans is public. Every other /billing route requires an
// authenticated caller; see middleware.AuthMiddleware.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into handler groups that
// implement RouteRegistrar:
//
//   - BillingHandlers: /billing/plans, /billing/me, /billing/quota/{type},
//     /billing/use-credit, /billing/subscribe/{planCode}, /billing/cancel
//   - AuthHandlers: /auth/me, and /auth/signout when ServerConfig.Sessions is set
//
// Server assembles the router, the shared middleware chain (request ids,
// logging, panic recovery, metrics, CORS, timeouts) and the health and
// metrics endpoints:
//
//	server := api.NewServer(api.ServerConfig{
//		Billing:    billingService,
//		Identities: identities,
//		Sessions:   sessionStore,
//		Logger:     logger,
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// # Error Envelope
//
// Failed requests answer with
//
//	{"ok": false, "error": "<code>", "message": "...", "field": "...", "redirect": "..."}
//
// where code is one of the httputil.Code* constants. Internal error text is
// logged and never returned to the caller.
//
// # Related Packages
//
//   - pkg/billing: plan catalog, resolver and usage ledger
//   - pkg/middleware: authentication, rate limiting, credit gates
//   - pkg/httputil: response writers and shared middleware
//   - pkg/observability: logging, metrics and health checks
package api
