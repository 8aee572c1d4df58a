package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errStoreDown = errors.New("connection refused")

type memPlanStore struct {
	mu      sync.Mutex
	plans   []PlanRecord
	err     error
	listErr error
	calls   int
}

func (m *memPlanStore) ListActivePlans(ctx context.Context) ([]PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.err != nil {
		return nil, m.err
	}
	var out []PlanRecord
	for _, p := range m.plans {
		if p.Plan.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPlanStore) GetPlanByCode(ctx context.Context, code string) (*PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.plans {
		if p.Plan.Code == code && p.Plan.IsActive {
			rec := p
			return &rec, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (m *memPlanStore) byID(id int64) (PlanRecord, bool) {
	for _, p := range m.plans {
		if p.Plan.ID == id {
			return p, true
		}
	}
	return PlanRecord{}, false
}

type memSubscriptionStore struct {
	mu        sync.Mutex
	plans     *memPlanStore
	subs      []Subscription
	nextID    int64
	err       error
	lookupErr error // fails CurrentSubscription only
}

func newMemSubscriptionStore(plans *memPlanStore) *memSubscriptionStore {
	return &memSubscriptionStore{plans: plans, nextID: 1}
}

func (m *memSubscriptionStore) CurrentSubscription(ctx context.Context, userID int64, now time.Time) (*ActiveSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}

	candidates := make([]Subscription, 0)
	for _, s := range m.subs {
		if s.UserID == userID && s.IsCurrent(now) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID > candidates[j].ID })

	plan, _ := m.plans.byID(candidates[0].PlanID)
	return &ActiveSubscription{Subscription: candidates[0], Plan: plan}, nil
}

func (m *memSubscriptionStore) ReplaceSubscription(ctx context.Context, userID, planID int64, start, end time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.cancelLocked(userID, start)
	sub := Subscription{
		ID:                 m.nextID,
		UserID:             userID,
		PlanID:             planID,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CreatedAt:          start,
	}
	m.nextID++
	m.subs = append(m.subs, sub)
	return &sub, nil
}

func (m *memSubscriptionStore) CancelActive(ctx context.Context, userID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.cancelLocked(userID, now), nil
}

func (m *memSubscriptionStore) cancelLocked(userID int64, now time.Time) int64 {
	var n int64
	for i := range m.subs {
		if m.subs[i].UserID == userID && m.subs[i].Status == SubscriptionStatusActive {
			at := now
			m.subs[i].Status = SubscriptionStatusCanceled
			m.subs[i].CanceledAt = &at
			n++
		}
	}
	return n
}

func (m *memSubscriptionStore) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.subs {
		if m.subs[i].Status == SubscriptionStatusActive && m.subs[i].CurrentPeriodEnd.Before(now) {
			m.subs[i].Status = SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

type usageKey struct {
	userID int64
	period string
	ct     CreditType
}

type memUsageStore struct {
	mu       sync.Mutex
	counters map[usageKey]int
	reads    int
	err      error
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{counters: make(map[usageKey]int)}
}

func (m *memUsageStore) GetUsage(ctx context.Context, userID int64, periodKey string, ct CreditType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return 0, m.err
	}
	return m.counters[usageKey{userID, periodKey, ct}], nil
}

func (m *memUsageStore) Increment(ctx context.Context, userID int64, periodKey string, ct CreditType, quota int, listingID *int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	k := usageKey{userID, periodKey, ct}
	if !IsUnlimited(quota) && m.counters[k] >= quota {
		return m.counters[k], false, nil
	}
	m.counters[k]++
	return m.counters[k], true, nil
}

// fixedResolver always returns the same plan and period
type fixedResolver struct {
	ep EffectivePlan
}

func (f fixedResolver) GetEffectivePlan(ctx context.Context, userID int64) EffectivePlan {
	return f.ep
}

func freePlanRecord() PlanRecord {
	return PlanRecord{Plan: Plan{
		ID: 1, Code: "free", Name: "Free", PriceCents: 0, Currency: "USD", BillingPeriod: "monthly",
		ListingQuota: 5, BumpCredits: 0, FeatureCredits: 0, SupportLevel: "community", IsActive: true,
	}}
}

func proPlanRecord() PlanRecord {
	return PlanRecord{
		Plan: Plan{
			ID: 2, Code: "pro", Name: "Pro", PriceCents: 999, Currency: "USD", BillingPeriod: "monthly",
			ListingQuota: UnlimitedQuota, BumpCredits: 10, FeatureCredits: 10, SupportLevel: "email", IsActive: true,
		},
		Perks: PerksFromText(`["Unlimited listings","10 bumps","10 features"]`),
	}
}

func validPayment() PaymentData {
	return PaymentData{
		CardNumber: "4111 1111 1111 1111",
		CardExpiry: "12/30",
		CardCVV:    "123",
		CardName:   "Ada Lovelace",
	}
}
