package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedIdentityProvider memoizes successful lookups for a short TTL.
// Failures are never cached, so a freshly issued token works immediately.
type CachedIdentityProvider struct {
	next      IdentityProvider
	cache     *expirable.LRU[string, Identity]
	generator *TokenGenerator
}

// NewCachedIdentityProvider wraps next with an LRU of size entries
func NewCachedIdentityProvider(next IdentityProvider, size int, ttl time.Duration) *CachedIdentityProvider {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedIdentityProvider{
		next:      next,
		cache:     expirable.NewLRU[string, Identity](size, nil, ttl),
		generator: NewTokenGenerator(),
	}
}

// Lookup implements IdentityProvider
func (c *CachedIdentityProvider) Lookup(ctx context.Context, token string) (*Identity, error) {
	// Keyed by hash so plaintext tokens never sit in memory longer than the request
	key := c.generator.HashToken(token)
	if identity, ok := c.cache.Get(key); ok {
		return &identity, nil
	}

	identity, err := c.next.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, *identity)
	return identity, nil
}

// Forget drops a token from the cache, e.g. after sign out
func (c *CachedIdentityProvider) Forget(token string) {
	c.cache.Remove(c.generator.HashToken(token))
}
