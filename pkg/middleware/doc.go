// Package middleware provides HTTP middleware for authentication, credit
// gating and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: Bearer session authentication
//
//	authMW := middleware.NewAuthMiddleware(identityProvider, logger)
//	billingRouter.Use(authMW.Handler)
//	// 401 {"ok":false,"error":"unauthorized","redirect":"/signin?next=..."}
//
// CreditGate: Spend one credit before a gated handler runs
//
//	gate := middleware.NewCreditGate(billingService, logger)
//	router.Handle("/listings", gate.Require(billing.CreditListing)(createListing))
//	// 402 {"ok":false,"error":"quota_exceeded"} when the allowance is spent
//
// swapmeet-api does not mount CreditGate: credits are spent through
// /billing/use-credit. It is for listing services that embed the API and add
// their own routes through api.Server.Router().
//
// RateLimitMiddleware: Per-user request limits
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "ratelimit:credits")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, logger).Handler)
//
// The Redis limiter is shared across API instances. RateLimiter is the
// in-process token bucket used when Redis is not configured.
//
// # Related Packages
//
//   - pkg/auth: identity lookup
//   - pkg/billing: credit consumption behind CreditGate
package middleware
