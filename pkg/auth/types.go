package auth

import (
	"context"
	"errors"

	"github.com/platinummonkey/swapmeet/pkg/contextkeys"
)

// IdentityStatus is the account state of a user
type IdentityStatus string

const (
	StatusActive    IdentityStatus = "active"
	StatusSuspended IdentityStatus = "suspended"
)

// Identity is the authenticated caller as seen by billing
type Identity struct {
	ID       int64          `json:"id"`
	Email    string         `json:"email"`
	FullName string         `json:"full_name"`
	Status   IdentityStatus `json:"status"`
}

// Active reports whether the account may use the marketplace
func (i *Identity) Active() bool {
	return i != nil && i.Status == StatusActive
}

// IdentityProvider resolves a bearer token to an identity
type IdentityProvider interface {
	Lookup(ctx context.Context, token string) (*Identity, error)
}

var (
	// ErrInvalidToken means the token is malformed, unknown, expired or revoked
	ErrInvalidToken = errors.New("invalid or expired session")
)

// IdentityFromContext returns the identity stored by the auth middleware
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return identity, ok && identity != nil
}
