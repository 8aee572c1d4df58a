package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/swapmeet/pkg/billing"
)

// fakeBillingAPI serves quota reads from a map and can hold them until released
type fakeBillingAPI struct {
	mu     sync.Mutex
	quotas map[billing.CreditType]billing.QuotaStatus
	gate   chan struct{}
	err    error
	calls  int

	me          *Me
	plans       []billing.Plan
	subscribed  []string
	subscribeFn func(planCode string, payment billing.PaymentData) error
}

func newFakeBillingAPI() *fakeBillingAPI {
	return &fakeBillingAPI{quotas: map[billing.CreditType]billing.QuotaStatus{
		billing.CreditListing: {CanUse: true, Remaining: 2, Quota: 5},
		billing.CreditBump:    {CanUse: false, Remaining: 0, Quota: 0},
		billing.CreditFeature: {CanUse: true, Remaining: billing.UnlimitedQuota, Quota: billing.UnlimitedQuota},
	}}
}

func (f *fakeBillingAPI) setQuota(ct billing.CreditType, status billing.QuotaStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotas[ct] = status
}

func (f *fakeBillingAPI) ListPlans(ctx context.Context) ([]billing.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plans, f.err
}

func (f *fakeBillingAPI) EffectivePlan(ctx context.Context) (*Me, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.me, f.err
}

func (f *fakeBillingAPI) CheckQuota(ctx context.Context, ct billing.CreditType) (billing.QuotaStatus, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return billing.QuotaStatus{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return billing.QuotaStatus{}, f.err
	}
	return f.quotas[ct], nil
}

func (f *fakeBillingAPI) UseCredit(ctx context.Context, ct billing.CreditType, listingID *int64) (int, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeBillingAPI) Subscribe(ctx context.Context, planCode string, payment billing.PaymentData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, planCode)
	if f.subscribeFn != nil {
		return f.subscribeFn(planCode, payment)
	}
	return nil
}

func (f *fakeBillingAPI) Cancel(ctx context.Context) error {
	return errors.New("not implemented")
}

func TestUsageTracker_Refresh(t *testing.T) {
	api := newFakeBillingAPI()
	tracker := NewUsageTracker(api, nil)

	_, ok := tracker.Get(billing.CreditListing)
	assert.False(t, ok)

	require.NoError(t, tracker.Refresh(context.Background()))

	snapshot := tracker.Snapshot()
	assert.Len(t, snapshot, 3)
	assert.Equal(t, 2, snapshot[billing.CreditListing].Remaining)
	assert.False(t, snapshot[billing.CreditBump].CanUse)
	assert.Equal(t, 3, api.calls)
}

func TestUsageTracker_RefreshFailureKeepsView(t *testing.T) {
	api := newFakeBillingAPI()
	tracker := NewUsageTracker(api, nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	api.mu.Lock()
	api.err = errors.New("connection reset")
	api.quotas[billing.CreditListing] = billing.QuotaStatus{Quota: 5}
	api.mu.Unlock()

	require.Error(t, tracker.Refresh(context.Background()))
	status, ok := tracker.Get(billing.CreditListing)
	require.True(t, ok)
	assert.Equal(t, 2, status.Remaining)
}

func TestUsageTracker_ApplyOptimistic(t *testing.T) {
	api := newFakeBillingAPI()
	tracker := NewUsageTracker(api, nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	// hold the background refetch so the local guess is observable
	gate := make(chan struct{})
	api.mu.Lock()
	api.gate = gate
	api.mu.Unlock()

	tracker.ApplyOptimistic(context.Background(), billing.CreditListing)
	tracker.ApplyOptimistic(context.Background(), billing.CreditFeature)

	status, _ := tracker.Get(billing.CreditListing)
	assert.Equal(t, 1, status.Remaining)
	assert.True(t, status.CanUse)

	feature, _ := tracker.Get(billing.CreditFeature)
	assert.Equal(t, billing.UnlimitedQuota, feature.Remaining, "unlimited credits are never decremented")

	// the server counted a second use from another tab
	api.setQuota(billing.CreditListing, billing.QuotaStatus{CanUse: false, Remaining: 0, Quota: 5})
	close(gate)

	require.Eventually(t, func() bool {
		status, _ := tracker.Get(billing.CreditListing)
		return status.Remaining == 0 && !status.CanUse
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUsageTracker_ApplyOptimisticFloorsAtZero(t *testing.T) {
	api := newFakeBillingAPI()
	tracker := NewUsageTracker(api, nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	gate := make(chan struct{})
	defer close(gate)
	api.mu.Lock()
	api.gate = gate
	api.mu.Unlock()

	tracker.ApplyOptimistic(context.Background(), billing.CreditBump)

	status, _ := tracker.Get(billing.CreditBump)
	assert.Equal(t, 0, status.Remaining)
	assert.False(t, status.CanUse)
}

// stagedAPI answers each batch of three quota reads with the server value seen
// when the batch started and holds the answers until its gate is closed
type stagedAPI struct {
	*fakeBillingAPI

	mu        sync.Mutex
	remaining int
	calls     int
	gates     []chan struct{}
	entered   chan struct{}
}

func (s *stagedAPI) CheckQuota(ctx context.Context, ct billing.CreditType) (billing.QuotaStatus, error) {
	s.mu.Lock()
	gate := s.gates[s.calls/len(billing.CreditTypes)]
	seen := s.remaining
	s.calls++
	s.mu.Unlock()

	s.entered <- struct{}{}
	<-gate
	return billing.QuotaStatus{CanUse: seen > 0, Remaining: seen, Quota: 5}, nil
}

func (s *stagedAPI) setRemaining(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = n
}

func TestUsageTracker_OutOfOrderRefreshKeepsNewest(t *testing.T) {
	api := &stagedAPI{
		fakeBillingAPI: newFakeBillingAPI(),
		remaining:      4,
		gates:          []chan struct{}{make(chan struct{}), make(chan struct{})},
		entered:        make(chan struct{}, 2*len(billing.CreditTypes)),
	}
	tracker := NewUsageTracker(api, nil)

	waitEntered := func() {
		for range billing.CreditTypes {
			select {
			case <-api.entered:
			case <-time.After(2 * time.Second):
				t.Fatal("refresh did not reach the server")
			}
		}
	}

	older := make(chan error, 1)
	go func() { older <- tracker.Refresh(context.Background()) }()
	waitEntered()

	api.setRemaining(2)
	newer := make(chan error, 1)
	go func() { newer <- tracker.Refresh(context.Background()) }()
	waitEntered()

	close(api.gates[1])
	require.NoError(t, <-newer)
	status, ok := tracker.Get(billing.CreditListing)
	require.True(t, ok)
	assert.Equal(t, 2, status.Remaining)

	close(api.gates[0])
	require.NoError(t, <-older)
	status, _ = tracker.Get(billing.CreditListing)
	assert.Equal(t, 2, status.Remaining, "a refresh that started earlier must not overwrite newer state")
}
