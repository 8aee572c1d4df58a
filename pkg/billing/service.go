package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// Service defines the billing operations exposed over HTTP
type Service interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	GetEffectivePlan(ctx context.Context, userID int64) EffectivePlan
	CheckQuota(ctx context.Context, userID int64, ct CreditType) (QuotaStatus, error)
	ConsumeCredit(ctx context.Context, userID int64, ct CreditType, listingID *int64) (ConsumeResult, error)
	Subscribe(ctx context.Context, userID int64, planCode string, payment PaymentData) (*Subscription, error)
	Cancel(ctx context.Context, userID int64) error
}

// DefaultService wires the catalog, resolver and ledger together
type DefaultService struct {
	catalog  *Catalog
	resolver *Resolver
	ledger   *Ledger
	subs     SubscriptionStore
	clock    clockwork.Clock
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// ServiceConfig configures NewService
type ServiceConfig struct {
	DefaultListingQuota int
	Clock               clockwork.Clock
	Logger              *observability.Logger
	Metrics             *observability.Metrics
}

// NewService creates the billing service over its stores
func NewService(plans PlanStore, subs SubscriptionStore, usage UsageStore, cfg ServiceConfig) *DefaultService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}

	catalog := NewCatalog(plans)
	resolver := NewResolver(catalog, subs, ResolverConfig{
		DefaultListingQuota: cfg.DefaultListingQuota,
		Clock:               cfg.Clock,
		Logger:              cfg.Logger,
		Metrics:             cfg.Metrics,
	})

	return &DefaultService{
		catalog:  catalog,
		resolver: resolver,
		ledger:   NewLedger(resolver, usage, cfg.Logger, cfg.Metrics),
		subs:     subs,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// ListPlans returns the active catalog
func (s *DefaultService) ListPlans(ctx context.Context) ([]Plan, error) {
	return s.catalog.ListActivePlans(ctx)
}

// GetEffectivePlan returns the plan in force for the user
func (s *DefaultService) GetEffectivePlan(ctx context.Context, userID int64) EffectivePlan {
	return s.resolver.GetEffectivePlan(ctx, userID)
}

// CheckQuota reports remaining credits without consuming any
func (s *DefaultService) CheckQuota(ctx context.Context, userID int64, ct CreditType) (QuotaStatus, error) {
	return s.ledger.CheckQuota(ctx, userID, ct)
}

// ConsumeCredit spends one credit
func (s *DefaultService) ConsumeCredit(ctx context.Context, userID int64, ct CreditType, listingID *int64) (ConsumeResult, error) {
	return s.ledger.ConsumeCredit(ctx, userID, ct, listingID)
}

// Subscribe moves the user onto planCode. Paid plans start a new one-month
// period at now, so usage counters start from zero. Subscribing to the free
// plan cancels the paid subscription and returns a nil subscription.
func (s *DefaultService) Subscribe(ctx context.Context, userID int64, planCode string, payment PaymentData) (*Subscription, error) {
	plan, err := s.catalog.GetPlanByCode(ctx, planCode)
	if err != nil {
		return nil, err
	}

	// read the subscription directly: the resolver's free fallback must not
	// decide a write
	now := s.clock.Now()
	active, err := s.subs.CurrentSubscription(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up current subscription: %w", err)
	}
	currentCode := FreePlanCode
	if active != nil {
		currentCode = active.Plan.Plan.Code
	}
	if currentCode == plan.Code {
		return nil, ErrAlreadyOnPlan
	}

	log := s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"from_plan": currentCode,
		"to_plan":   plan.Code,
	})

	if plan.Code == FreePlanCode {
		if _, err := s.subs.CancelActive(ctx, userID, now); err != nil {
			return nil, fmt.Errorf("failed to cancel subscription: %w", err)
		}
		s.metrics.RecordSubscriptionChange("downgrade", plan.Code)
		log.Info("downgraded to free plan")
		return nil, nil
	}

	if err := ValidateCard(payment, now); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.metrics.RecordPaymentValidationFailure(ve.Field)
		}
		return nil, err
	}

	sub, err := s.subs.ReplaceSubscription(ctx, userID, plan.ID, now, now.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.metrics.RecordSubscriptionChange("subscribe", plan.Code)
	log.WithField("subscription_id", sub.ID).Info("subscription created")
	return sub, nil
}

// Cancel ends the user's current subscription. The user drops to the free plan.
func (s *DefaultService) Cancel(ctx context.Context, userID int64) error {
	n, err := s.subs.CancelActive(ctx, userID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if n == 0 {
		return ErrNoActiveSubscription
	}

	s.metrics.RecordSubscriptionChange("cancel", "")
	s.logger.WithField("user_id", userID).Info("subscription canceled")
	return nil
}
