// Package auth resolves bearer session tokens to marketplace identities.
//
// # Overview
//
// Sign-in itself happens elsewhere; this package only answers "who is calling".
// A session token is issued once, handed to the browser or Go client, and
// stored server side as a SHA-256 hash:
//
//	gen := auth.NewTokenGenerator()
//	token, hash, err := gen.GenerateToken()
//	// token: swm_<base64url(32 random bytes)>, shown once
//	// hash:  hex(sha256(token)), the sessions primary key
//
// # Identity Lookup
//
// IdentityProvider is the collaborator the HTTP layer depends on:
//
//	type IdentityProvider interface {
//		Lookup(ctx context.Context, token string) (*Identity, error)
//	}
//
// PostgresSessionStore implements it over the sessions and users tables.
// CachedIdentityProvider fronts any provider with a short-lived in-process
// LRU so hot sessions do not hit the database on every billing call.
//
// Lookup failures that mean "not signed in" wrap ErrInvalidToken; anything
// else is an infrastructure error and surfaces as a 500.
//
// # Related Packages
//
//   - pkg/middleware: AuthMiddleware turns Lookup results into request context
//   - pkg/api: GET /auth/me returns the Identity
package auth
