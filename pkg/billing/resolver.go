package billing

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/swapmeet/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/swapmeet/pkg/billing")

// PlanResolver resolves the plan in force for a user
type PlanResolver interface {
	GetEffectivePlan(ctx context.Context, userID int64) EffectivePlan
}

// ResolverConfig configures a Resolver
type ResolverConfig struct {
	// DefaultListingQuota is used by the synthesized plan when the catalog has no free plan
	DefaultListingQuota int
	Clock               clockwork.Clock
	Logger              *observability.Logger
	Metrics             *observability.Metrics
}

// Resolver determines a user's effective plan
type Resolver struct {
	catalog      *Catalog
	subs         SubscriptionStore
	defaultQuota int
	clock        clockwork.Clock
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewResolver creates a new resolver
func NewResolver(catalog *Catalog, subs SubscriptionStore, cfg ResolverConfig) *Resolver {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.DefaultListingQuota <= 0 {
		cfg.DefaultListingQuota = DefaultListingQuota
	}
	return &Resolver{
		catalog:      catalog,
		subs:         subs,
		defaultQuota: cfg.DefaultListingQuota,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// GetEffectivePlan returns the plan in force right now. It never fails:
// storage errors degrade to the next tier and are logged.
func (r *Resolver) GetEffectivePlan(ctx context.Context, userID int64) EffectivePlan {
	ctx, span := tracer.Start(ctx, "billing.GetEffectivePlan")
	defer span.End()

	now := r.clock.Now()
	ep := r.resolve(ctx, userID, now)

	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("plan.code", ep.Plan.Code),
		attribute.String("plan.source", string(ep.Source)),
	)
	r.metrics.RecordPlanResolution(string(ep.Source))
	return ep
}

func (r *Resolver) resolve(ctx context.Context, userID int64, now time.Time) EffectivePlan {
	log := r.logger.WithField("user_id", userID)

	active, err := r.subs.CurrentSubscription(ctx, userID, now)
	if err != nil {
		log.WithError(err).Warn("subscription lookup failed, falling back to free plan")
		r.metrics.RecordPlanFallback("subscription")
	} else if active != nil {
		sub := active.Subscription
		return EffectivePlan{
			Subscription: &SubscriptionSummary{
				ID:                 sub.ID,
				Status:             sub.Status,
				CurrentPeriodStart: sub.CurrentPeriodStart,
				CurrentPeriodEnd:   sub.CurrentPeriodEnd,
				Code:               active.Plan.Plan.Code,
			},
			Plan:   active.Plan.Normalized(),
			Period: SubscriptionPeriod(sub),
			Source: PlanSourceSubscription,
		}
	}

	free, err := r.catalog.GetPlanByCode(ctx, FreePlanCode)
	if err == nil {
		return EffectivePlan{
			Plan:   *free,
			Period: CalendarPeriod(now),
			Source: PlanSourceCatalogFree,
		}
	}
	log.WithError(err).Warn("free plan unavailable, using synthesized plan")
	r.metrics.RecordPlanFallback("catalog_free")

	return EffectivePlan{
		Plan:   FallbackPlan(r.defaultQuota),
		Period: CalendarPeriod(now),
		Source: PlanSourceFallback,
	}
}

// FallbackPlan synthesizes the free plan used when the catalog cannot supply one
func FallbackPlan(listingQuota int) Plan {
	p := Plan{
		Code:           FreePlanCode,
		Name:           "Free",
		Currency:       "USD",
		BillingPeriod:  BillingPeriodMonthly,
		ListingQuota:   listingQuota,
		BumpCredits:    0,
		FeatureCredits: 0,
		SupportLevel:   "none",
		IsActive:       true,
	}
	p.Perks = DefaultPerks(p)
	return p
}
