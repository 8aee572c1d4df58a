package client

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCacheTTL bounds how long a current-user lookup is reused
const DefaultCacheTTL = 10 * time.Second

// TTLCache holds one value for a fixed time. It is a latency shortcut and
// never the source of truth: local mutations must call Invalidate.
type TTLCache[V any] struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu        sync.Mutex
	value     V
	expiresAt time.Time
	valid     bool
}

// NewTTLCache creates a cache. clock may be nil.
func NewTTLCache[V any](ttl time.Duration, clock clockwork.Clock) *TTLCache[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TTLCache[V]{clock: clock, ttl: ttl}
}

// Get returns the cached value, or calls load and caches its result.
// Errors are not cached.
func (c *TTLCache[V]) Get(ctx context.Context, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Peek(); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(v)
	return v, nil
}

// Peek returns the value if it has not expired
func (c *TTLCache[V]) Peek() (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid || !c.clock.Now().Before(c.expiresAt) {
		var zero V
		return zero, false
	}
	return c.value, true
}

// Set stores v for one TTL
func (c *TTLCache[V]) Set(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	c.expiresAt = c.clock.Now().Add(c.ttl)
	c.valid = true
}

// Invalidate drops the cached value
func (c *TTLCache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	c.value = zero
	c.valid = false
}
