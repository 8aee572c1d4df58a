// Package billing resolves subscription plans and meters usage credits for the marketplace.
//
// # Overview
//
// Every user is on exactly one effective plan at any instant. The plan decides
// three monthly allowances: listing creation, bumps, and featured placements.
// Consumption of a credit is recorded against the user's current billing period
// and rejected once the allowance is spent.
//
// # Plan Catalog
//
// Plans are immutable catalog rows. The perks column is free-form and may hold
// a JSON array, a JSON string, or delimited text:
//
//	plans, err := catalog.ListActivePlans(ctx)
//	for _, p := range plans {
//		fmt.Println(p.Code, p.Perks)
//	}
//
// A plan with no perks gets four synthesized lines derived from its quotas.
//
// # Effective Plan
//
// Resolution falls through three tiers and never fails:
//
//  1. the user's current active subscription (newest row wins)
//  2. the catalog's "free" plan
//  3. a synthesized free plan built from the configured listing quota
//
//	ep := resolver.GetEffectivePlan(ctx, userID)
//	fmt.Println(ep.Plan.Code, ep.Period.Key)
//
// # Usage Ledger
//
// Counters are keyed by (user, period). Consumption is a single conditional
// increment in the backing store so concurrent requests cannot overspend:
//
//	status, err := ledger.CheckQuota(ctx, userID, billing.CreditListing)
//	res, err := ledger.ConsumeCredit(ctx, userID, billing.CreditListing, &listingID)
//	if billing.IsQuotaExceeded(err) {
//		// upsell
//	}
//
// A quota of 9999 (UnlimitedQuota) never runs out.
//
// # Stores
//
//   - PostgresStore: plans, subscriptions, usage counters and usage events
//   - RedisUsageStore: usage counters in Redis hashes, incremented by a Lua script
//   - CachedPlanStore: in-process LRU with an optional Redis tier in front of any PlanStore
//
// # Related Packages
//
//   - pkg/api: HTTP handlers for the /billing routes
//   - pkg/checkout: client-side upgrade flow
//   - pkg/client: HTTP client for the billing API
package billing
