package client

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/swapmeet/pkg/async"
	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// refetchTimeout bounds the background refetch after an optimistic update
const refetchTimeout = 10 * time.Second

// UsageTracker keeps a local view of the caller's credits. The server is
// authoritative; local decrements are overwritten by the next refresh.
type UsageTracker struct {
	api    BillingAPI
	logger *observability.Logger

	mu      sync.RWMutex
	usage   map[billing.CreditType]billing.QuotaStatus
	started uint64 // refreshes begun
	applied uint64 // generation of the view
}

// NewUsageTracker creates a tracker with an empty view
func NewUsageTracker(api BillingAPI, logger *observability.Logger) *UsageTracker {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &UsageTracker{
		api:    api,
		logger: logger,
		usage:  make(map[billing.CreditType]billing.QuotaStatus),
	}
}

// Refresh fetches every credit type concurrently and replaces the view.
// The view is left untouched when any fetch fails, or when a refresh that
// started later has already landed.
func (t *UsageTracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	t.started++
	gen := t.started
	t.mu.Unlock()

	results := make([]billing.QuotaStatus, len(billing.CreditTypes))

	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range billing.CreditTypes {
		g.Go(func() error {
			status, err := t.api.CheckQuota(gctx, ct)
			if err != nil {
				return err
			}
			results[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen < t.applied {
		t.logger.WithField("generation", gen).Debug("dropping stale usage refresh")
		return nil
	}
	t.applied = gen
	for i, ct := range billing.CreditTypes {
		t.usage[ct] = results[i]
	}
	return nil
}

// Get returns the local view of one credit type
func (t *UsageTracker) Get(ct billing.CreditType) (billing.QuotaStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.usage[ct]
	return status, ok
}

// Snapshot copies the whole local view
func (t *UsageTracker) Snapshot() map[billing.CreditType]billing.QuotaStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[billing.CreditType]billing.QuotaStatus, len(t.usage))
	for ct, status := range t.usage {
		out[ct] = status
	}
	return out
}

// ApplyOptimistic counts one use locally, then refetches authoritative
// state in the background and overwrites the local guess.
func (t *UsageTracker) ApplyOptimistic(ctx context.Context, ct billing.CreditType) {
	t.mu.Lock()
	if status, ok := t.usage[ct]; ok && !billing.IsUnlimited(status.Quota) {
		if status.Remaining > 0 {
			status.Remaining--
		}
		status.CanUse = status.Remaining > 0
		t.usage[ct] = status
	}
	t.mu.Unlock()

	async.SafeGo(context.WithoutCancel(ctx), t.logger, refetchTimeout, "usage-refetch", t.Refresh)
}
