package billing

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		price_cents BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		billing_period TEXT NOT NULL DEFAULT 'monthly',
		listing_quota INTEGER NOT NULL DEFAULT 0,
		bump_credits INTEGER NOT NULL DEFAULT 0,
		feature_credits INTEGER NOT NULL DEFAULT 0,
		support_level TEXT NOT NULL DEFAULT 'none',
		perks TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		plan_id BIGINT NOT NULL REFERENCES plans(id),
		status TEXT NOT NULL,
		current_period_start TIMESTAMPTZ NOT NULL,
		current_period_end TIMESTAMPTZ NOT NULL,
		canceled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_status ON subscriptions (user_id, status, id DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_one_active ON subscriptions (user_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
		user_id BIGINT NOT NULL,
		period_key TEXT NOT NULL,
		listings_used INTEGER NOT NULL DEFAULT 0,
		bumps_used INTEGER NOT NULL DEFAULT 0,
		features_used INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, period_key)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_events (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		period_key TEXT NOT NULL,
		credit_type TEXT NOT NULL,
		listing_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_events_user_period ON usage_events (user_id, period_key)`,
}

// EnsureSchema creates the billing tables if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	db := s.conns.Primary()
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply billing schema: %w", err)
		}
	}
	return nil
}
