package billing

import (
	"fmt"
	"strconv"
	"time"
)

// UnlimitedQuota is the quota value that means "no limit".
const UnlimitedQuota = 9999

// FreePlanCode is the catalog code of the plan every user falls back to.
const FreePlanCode = "free"

// BillingPeriodMonthly is the only billing period the catalog supports.
const BillingPeriodMonthly = "monthly"

// DefaultListingQuota is the listing allowance of the synthesized fallback plan.
const DefaultListingQuota = 5

// IsUnlimited reports whether a quota value is the unlimited sentinel.
func IsUnlimited(quota int) bool {
	return quota >= UnlimitedQuota
}

// CreditType identifies a metered action
type CreditType string

const (
	CreditListing CreditType = "listing"
	CreditBump    CreditType = "bump"
	CreditFeature CreditType = "feature"
)

// CreditTypes lists every metered action in display order
var CreditTypes = []CreditType{CreditListing, CreditBump, CreditFeature}

// ParseCreditType validates a credit type received from a client
func ParseCreditType(s string) (CreditType, error) {
	switch CreditType(s) {
	case CreditListing, CreditBump, CreditFeature:
		return CreditType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCreditType, s)
	}
}

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Plan is a catalog row with its perks already normalized.
type Plan struct {
	ID             int64    `json:"id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	PriceCents     int64    `json:"price_cents"`
	Currency       string   `json:"currency"`
	BillingPeriod  string   `json:"billing_period"`
	ListingQuota   int      `json:"listing_quota"`
	BumpCredits    int      `json:"bump_credits"`
	FeatureCredits int      `json:"feature_credits"`
	SupportLevel   string   `json:"support_level"`
	Perks          []string `json:"perks"`
	IsActive       bool     `json:"is_active"`
}

// QuotaFor returns the plan's allowance for a credit type
func (p Plan) QuotaFor(ct CreditType) int {
	switch ct {
	case CreditListing:
		return p.ListingQuota
	case CreditBump:
		return p.BumpCredits
	case CreditFeature:
		return p.FeatureCredits
	default:
		return 0
	}
}

// PlanRecord is a plan as stored, with its perks column still in raw form.
type PlanRecord struct {
	Plan  Plan       `json:"plan"`
	Perks PerksField `json:"perks"`
}

// Normalized returns the plan with its perks resolved to display lines.
func (r PlanRecord) Normalized() Plan {
	p := r.Plan
	p.Perks = NormalizePerks(r.Perks, p)
	return p
}

// Subscription is one billing cycle of a user on a plan.
type Subscription struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"user_id"`
	PlanID             int64              `json:"plan_id"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CanceledAt         *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// IsCurrent reports whether the subscription is active and covers now.
func (s Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionStatusActive &&
		!now.Before(s.CurrentPeriodStart) &&
		!now.After(s.CurrentPeriodEnd)
}

// ActiveSubscription is a current subscription joined with its plan.
type ActiveSubscription struct {
	Subscription Subscription
	Plan         PlanRecord
}

// SubscriptionSummary is the client-facing view of a current subscription.
type SubscriptionSummary struct {
	ID                 int64              `json:"id"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	Code               string             `json:"code"`
}

// PlanSource records which resolution tier produced an effective plan
type PlanSource string

const (
	PlanSourceSubscription PlanSource = "subscription"
	PlanSourceCatalogFree  PlanSource = "catalog_free"
	PlanSourceFallback     PlanSource = "fallback"
)

// Period is the usage accounting window of an effective plan.
// Usage counters are keyed by (user, Key).
type Period struct {
	Key   string    `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SubscriptionPeriod returns the accounting window of a paid subscription.
func SubscriptionPeriod(sub Subscription) Period {
	return Period{
		Key:   "sub-" + strconv.FormatInt(sub.ID, 10) + "-" + strconv.FormatInt(sub.CurrentPeriodStart.Unix(), 10),
		Start: sub.CurrentPeriodStart,
		End:   sub.CurrentPeriodEnd,
	}
}

// CalendarPeriod returns the UTC calendar month containing now.
func CalendarPeriod(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Period{
		Key:   fmt.Sprintf("free-%04d-%02d", start.Year(), int(start.Month())),
		Start: start,
		End:   end,
	}
}

// EffectivePlan is the plan in force for a user right now.
type EffectivePlan struct {
	Subscription *SubscriptionSummary `json:"subscription"`
	Plan         Plan                 `json:"effective_plan"`
	Period       Period               `json:"-"`
	Source       PlanSource           `json:"-"`
}

// QuotaStatus answers a quota check
type QuotaStatus struct {
	CanUse    bool `json:"canUse"`
	Remaining int  `json:"remaining"`
	Quota     int  `json:"quota"`
}

// ConsumeResult is the outcome of a successful credit consumption
type ConsumeResult struct {
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
	Quota     int `json:"quota"`
}

// PaymentData holds card details captured by the upgrade form.
// Card data is format-checked only; no charge is made.
type PaymentData struct {
	CardNumber string `json:"card_number"`
	CardExpiry string `json:"card_expiry"`
	CardCVV    string `json:"card_cvv"`
	CardName   string `json:"card_name"`
}
