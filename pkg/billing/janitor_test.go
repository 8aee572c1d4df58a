package billing

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	before time.Time
	n      int64
}

func (p *recordingPruner) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.n, nil
}

func TestJanitor(t *testing.T) {
	now := time.Date(2026, time.October, 19, 3, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	plans := &memPlanStore{plans: []PlanRecord{freePlanRecord(), proPlanRecord()}}
	subs := newMemSubscriptionStore(plans)
	subs.subs = []Subscription{
		{ID: 1, UserID: 1, PlanID: 2, Status: SubscriptionStatusActive, CurrentPeriodStart: now.AddDate(0, -2, 0), CurrentPeriodEnd: now.AddDate(0, -1, 0)},
		{ID: 2, UserID: 2, PlanID: 2, Status: SubscriptionStatusActive, CurrentPeriodStart: now.AddDate(0, 0, -1), CurrentPeriodEnd: now.AddDate(0, 1, -1)},
	}
	pruner := &recordingPruner{n: 4}

	j := NewJanitor(subs, pruner, clock, 30*24*time.Hour)

	n, err := j.ExpireLapsedSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, SubscriptionStatusExpired, subs.subs[0].Status)
	assert.Equal(t, SubscriptionStatusActive, subs.subs[1].Status)

	n, err = j.PruneUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, now.Add(-30*24*time.Hour), pruner.before)
}

func TestJanitor_NoPruner(t *testing.T) {
	j := NewJanitor(newMemSubscriptionStore(&memPlanStore{}), nil, nil, 0)
	n, err := j.PruneUsage(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
