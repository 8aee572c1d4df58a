package billing

import (
	"context"
	"time"
)

// PlanStore reads the plan catalog
type PlanStore interface {
	// ListActivePlans returns active plans ordered by price, then id
	ListActivePlans(ctx context.Context) ([]PlanRecord, error)
	// GetPlanByCode returns ErrPlanNotFound when no active plan has the code
	GetPlanByCode(ctx context.Context, code string) (*PlanRecord, error)
}

// SubscriptionStore persists subscription rows
type SubscriptionStore interface {
	// CurrentSubscription returns the newest active subscription covering now, or nil
	CurrentSubscription(ctx context.Context, userID int64, now time.Time) (*ActiveSubscription, error)
	// ReplaceSubscription cancels the user's active rows and inserts a new active row, atomically
	ReplaceSubscription(ctx context.Context, userID, planID int64, start, end time.Time) (*Subscription, error)
	// CancelActive cancels every active row of the user and returns how many changed
	CancelActive(ctx context.Context, userID int64, now time.Time) (int64, error)
	// ExpireLapsed marks active rows whose period ended before now as expired
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// UsageStore holds per-period usage counters
type UsageStore interface {
	// GetUsage returns the counter value, zero when the period has no row yet
	GetUsage(ctx context.Context, userID int64, periodKey string, ct CreditType) (int, error)
	// Increment atomically adds one to the counter if it is below quota.
	// It returns the counter value and whether the increment happened.
	// Unlimited quotas always increment.
	Increment(ctx context.Context, userID int64, periodKey string, ct CreditType, quota int, listingID *int64) (int, bool, error)
}
