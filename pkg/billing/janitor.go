package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// UsagePruner deletes stale usage rows
type UsagePruner interface {
	PruneUsage(ctx context.Context, before time.Time) (int64, error)
}

// Janitor runs periodic billing maintenance
type Janitor struct {
	subs      SubscriptionStore
	usage     UsagePruner
	clock     clockwork.Clock
	retention time.Duration
}

// NewJanitor creates a janitor. usage may be nil when the usage backend expires keys itself.
func NewJanitor(subs SubscriptionStore, usage UsagePruner, clock clockwork.Clock, retention time.Duration) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &Janitor{subs: subs, usage: usage, clock: clock, retention: retention}
}

// ExpireLapsedSubscriptions flips lapsed active subscriptions to expired
func (j *Janitor) ExpireLapsedSubscriptions(ctx context.Context) (int64, error) {
	n, err := j.subs.ExpireLapsed(ctx, j.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return n, nil
}

// PruneUsage removes usage counters older than the retention window
func (j *Janitor) PruneUsage(ctx context.Context) (int64, error) {
	if j.usage == nil {
		return 0, nil
	}
	n, err := j.usage.PruneUsage(ctx, j.clock.Now().Add(-j.retention))
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return n, nil
}
