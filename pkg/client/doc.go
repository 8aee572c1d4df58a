// Package client is a Go client for the swapmeet billing REST API.
//
// Client maps the JSON error envelope back onto the billing package errors,
// so callers can use errors.Is(err, billing.ErrPlanNotFound),
// billing.IsQuotaExceeded(err) or errors.Is(err, client.ErrUnauthorized)
// exactly as server-side code does.
//
//	c := client.NewClient(client.Config{BaseURL: "https://api.swapmeet.example", Token: token})
//	me, err := c.EffectivePlan(ctx)
//	if redirect, ok := client.SignInRedirect(err); ok {
//		// send the browser to redirect
//	}
//
// The current-user lookup is cached for a few seconds in a TTLCache.
// UsageTracker keeps a local credit view that is decremented optimistically
// and then overwritten from the server.
package client
