package billing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// Ledger answers quota checks and records credit consumption
type Ledger struct {
	resolver PlanResolver
	usage    UsageStore
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewLedger creates a new ledger
func NewLedger(resolver PlanResolver, usage UsageStore, logger *observability.Logger, metrics *observability.Metrics) *Ledger {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Ledger{
		resolver: resolver,
		usage:    usage,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckQuota reports whether one more credit can be used. It never mutates usage.
func (l *Ledger) CheckQuota(ctx context.Context, userID int64, ct CreditType) (QuotaStatus, error) {
	if _, err := ParseCreditType(string(ct)); err != nil {
		return QuotaStatus{}, err
	}

	ctx, span := tracer.Start(ctx, "billing.CheckQuota")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("credit.type", string(ct)))

	ep := l.resolver.GetEffectivePlan(ctx, userID)
	quota := ep.Plan.QuotaFor(ct)

	if IsUnlimited(quota) {
		l.metrics.RecordQuotaCheck(string(ct), true)
		return QuotaStatus{CanUse: true, Remaining: UnlimitedQuota, Quota: quota}, nil
	}

	used, err := l.usage.GetUsage(ctx, userID, ep.Period.Key, ct)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return QuotaStatus{}, fmt.Errorf("failed to read usage: %w", err)
	}

	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}
	status := QuotaStatus{CanUse: remaining > 0, Remaining: remaining, Quota: quota}
	l.metrics.RecordQuotaCheck(string(ct), status.CanUse)
	return status, nil
}

// ConsumeCredit spends one credit of the given type in the user's current period.
// It returns a *QuotaExceededError when the allowance is spent.
func (l *Ledger) ConsumeCredit(ctx context.Context, userID int64, ct CreditType, listingID *int64) (ConsumeResult, error) {
	if _, err := ParseCreditType(string(ct)); err != nil {
		return ConsumeResult{}, err
	}

	ctx, span := tracer.Start(ctx, "billing.ConsumeCredit")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("credit.type", string(ct)))

	ep := l.resolver.GetEffectivePlan(ctx, userID)
	quota := ep.Plan.QuotaFor(ct)

	used, ok, err := l.usage.Increment(ctx, userID, ep.Period.Key, ct, quota, listingID)
	if err != nil {
		l.metrics.RecordConsumption(string(ct), "error")
		span.SetStatus(codes.Error, err.Error())
		return ConsumeResult{}, fmt.Errorf("failed to record usage: %w", err)
	}
	if !ok {
		l.metrics.RecordConsumption(string(ct), "quota_exceeded")
		l.logger.WithFields(map[string]interface{}{
			"user_id":     userID,
			"credit_type": string(ct),
			"period":      ep.Period.Key,
			"used":        used,
			"quota":       quota,
		}).Info("credit rejected, quota exceeded")
		return ConsumeResult{}, &QuotaExceededError{CreditType: ct, Used: used, Limit: quota}
	}

	l.metrics.RecordConsumption(string(ct), "ok")

	remaining := UnlimitedQuota
	if !IsUnlimited(quota) {
		remaining = quota - used
		if remaining < 0 {
			remaining = 0
		}
	}
	return ConsumeResult{Used: used, Remaining: remaining, Quota: quota}, nil
}
