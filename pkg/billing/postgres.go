package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrSubscriptionConflict is returned when another request changed the user's
// subscription at the same time
var ErrSubscriptionConflict = errors.New("concurrent subscription change")

// DBProvider supplies the write and read handles. *postgres.ConnectionManager satisfies it.
type DBProvider interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

type singleDB struct{ db *sql.DB }

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

// usageColumns maps credit types to their counter column
var usageColumns = map[CreditType]string{
	CreditListing: "listings_used",
	CreditBump:    "bumps_used",
	CreditFeature: "features_used",
}

// PostgresStore implements PlanStore, SubscriptionStore and UsageStore on PostgreSQL.
// Catalog reads go to a replica; everything touching subscriptions or usage uses the primary.
type PostgresStore struct {
	conns DBProvider
}

// NewPostgresStore creates a store over a primary/replica pair
func NewPostgresStore(conns DBProvider) *PostgresStore {
	return &PostgresStore{conns: conns}
}

// NewPostgresStoreFromDB creates a store that uses one handle for reads and writes
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{conns: singleDB{db: db}}
}

const planColumns = `id, code, name, price_cents, currency, billing_period,
		listing_quota, bump_credits, feature_credits, support_level, perks, is_active`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner, extra ...interface{}) (*PlanRecord, error) {
	var rec PlanRecord
	var perks sql.NullString
	dest := append(extra,
		&rec.Plan.ID, &rec.Plan.Code, &rec.Plan.Name, &rec.Plan.PriceCents, &rec.Plan.Currency,
		&rec.Plan.BillingPeriod, &rec.Plan.ListingQuota, &rec.Plan.BumpCredits,
		&rec.Plan.FeatureCredits, &rec.Plan.SupportLevel, &perks, &rec.Plan.IsActive,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if perks.Valid {
		rec.Perks = PerksFromText(perks.String)
	}
	return &rec, nil
}

// ListActivePlans returns active plans ordered by price then id
func (s *PostgresStore) ListActivePlans(ctx context.Context) ([]PlanRecord, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE is_active = TRUE
		ORDER BY price_cents ASC, id ASC
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}

	return plans, nil
}

// GetPlanByCode returns an active plan by code
func (s *PostgresStore) GetPlanByCode(ctx context.Context, code string) (*PlanRecord, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE code = $1 AND is_active = TRUE
	`

	rec, err := scanPlan(s.conns.Replica().QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return rec, nil
}

// UpsertPlans inserts or updates catalog rows by code
func (s *PostgresStore) UpsertPlans(ctx context.Context, plans []PlanRecord) error {
	query := `
		INSERT INTO plans (code, name, price_cents, currency, billing_period,
			listing_quota, bump_credits, feature_credits, support_level, perks, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			price_cents = EXCLUDED.price_cents,
			currency = EXCLUDED.currency,
			billing_period = EXCLUDED.billing_period,
			listing_quota = EXCLUDED.listing_quota,
			bump_credits = EXCLUDED.bump_credits,
			feature_credits = EXCLUDED.feature_credits,
			support_level = EXCLUDED.support_level,
			perks = EXCLUDED.perks,
			is_active = EXCLUDED.is_active
	`

	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range plans {
		perks, err := encodePerks(rec.Perks)
		if err != nil {
			return fmt.Errorf("failed to encode perks for %s: %w", rec.Plan.Code, err)
		}
		p := rec.Plan
		_, err = tx.ExecContext(ctx, query,
			p.Code, p.Name, p.PriceCents, p.Currency, p.BillingPeriod,
			p.ListingQuota, p.BumpCredits, p.FeatureCredits, p.SupportLevel, perks, p.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert plan %s: %w", p.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// encodePerks stores lists as JSON arrays so they round-trip through the text column
func encodePerks(f PerksField) (sql.NullString, error) {
	switch f.Kind {
	case PerksList:
		b, err := json.Marshal(f.List)
		if err != nil {
			return sql.NullString{}, err
		}
		return sql.NullString{String: string(b), Valid: true}, nil
	case PerksText:
		return sql.NullString{String: f.Text, Valid: true}, nil
	default:
		return sql.NullString{}, nil
	}
}

// CurrentSubscription returns the newest active subscription covering now
func (s *PostgresStore) CurrentSubscription(ctx context.Context, userID int64, now time.Time) (*ActiveSubscription, error) {
	query := `
		SELECT s.id, s.user_id, s.plan_id, s.status, s.current_period_start,
			s.current_period_end, s.canceled_at, s.created_at,
			p.id, p.code, p.name, p.price_cents, p.currency, p.billing_period,
			p.listing_quota, p.bump_credits, p.feature_credits, p.support_level, p.perks, p.is_active
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.user_id = $1
			AND s.status = 'active'
			AND s.current_period_start <= $2
			AND s.current_period_end >= $2
		ORDER BY s.id DESC
		LIMIT 1
	`

	var sub Subscription
	var canceledAt sql.NullTime
	rec, err := scanPlan(s.conns.Primary().QueryRowContext(ctx, query, userID, now),
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd, &canceledAt, &sub.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current subscription: %w", err)
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}

	return &ActiveSubscription{Subscription: sub, Plan: *rec}, nil
}

// ReplaceSubscription cancels active rows and inserts the new period in one transaction
func (s *PostgresStore) ReplaceSubscription(ctx context.Context, userID, planID int64, start, end time.Time) (*Subscription, error) {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cancelQuery := `
		UPDATE subscriptions
		SET status = 'canceled', canceled_at = $2
		WHERE user_id = $1 AND status = 'active'
	`
	if _, err := tx.ExecContext(ctx, cancelQuery, userID, start); err != nil {
		return nil, fmt.Errorf("failed to cancel previous subscription: %w", err)
	}

	sub := &Subscription{
		UserID:             userID,
		PlanID:             planID,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}

	insertQuery := `
		INSERT INTO subscriptions (user_id, plan_id, status, current_period_start, current_period_end, created_at)
		VALUES ($1, $2, 'active', $3, $4, $5)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, insertQuery, userID, planID, start, end, start).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrSubscriptionConflict
		}
		return nil, fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sub, nil
}

// CancelActive cancels all active subscriptions of a user
func (s *PostgresStore) CancelActive(ctx context.Context, userID int64, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = 'canceled', canceled_at = $2
		WHERE user_id = $1 AND status = 'active'
	`
	result, err := s.conns.Primary().ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel subscriptions: %w", err)
	}
	return result.RowsAffected()
}

// ExpireLapsed marks active subscriptions whose period has ended as expired
func (s *PostgresStore) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = 'expired'
		WHERE status = 'active' AND current_period_end < $1
	`
	result, err := s.conns.Primary().ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return result.RowsAffected()
}

// GetUsage reads one usage counter
func (s *PostgresStore) GetUsage(ctx context.Context, userID int64, periodKey string, ct CreditType) (int, error) {
	column, ok := usageColumns[ct]
	if !ok {
		return 0, ErrInvalidCreditType
	}

	query := fmt.Sprintf(`SELECT %s FROM usage_counters WHERE user_id = $1 AND period_key = $2`, column)

	var used int
	err := s.conns.Primary().QueryRowContext(ctx, query, userID, periodKey).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return used, nil
}

// Increment performs the guarded increment. The UPDATE's WHERE clause is the
// quota check, so concurrent callers serialize on the row lock and the loser
// re-evaluates the guard against the committed value.
func (s *PostgresStore) Increment(ctx context.Context, userID int64, periodKey string, ct CreditType, quota int, listingID *int64) (int, bool, error) {
	column, ok := usageColumns[ct]
	if !ok {
		return 0, false, ErrInvalidCreditType
	}

	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ensureQuery := `
		INSERT INTO usage_counters (user_id, period_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id, period_key) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, ensureQuery, userID, periodKey); err != nil {
		return 0, false, fmt.Errorf("failed to initialize usage period: %w", err)
	}

	incrQuery := fmt.Sprintf(`
		UPDATE usage_counters
		SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE user_id = $1 AND period_key = $2 AND ($3 >= %[2]d OR %[1]s < $3)
		RETURNING %[1]s
	`, column, UnlimitedQuota)

	var used int
	err = tx.QueryRowContext(ctx, incrQuery, userID, periodKey, quota).Scan(&used)
	if err == sql.ErrNoRows {
		current := 0
		selectQuery := fmt.Sprintf(`SELECT %s FROM usage_counters WHERE user_id = $1 AND period_key = $2`, column)
		if err := tx.QueryRowContext(ctx, selectQuery, userID, periodKey).Scan(&current); err != nil {
			return 0, false, fmt.Errorf("failed to read usage: %w", err)
		}
		return current, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}

	eventQuery := `
		INSERT INTO usage_events (user_id, period_key, credit_type, listing_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := tx.ExecContext(ctx, eventQuery, userID, periodKey, string(ct), listingID); err != nil {
		return 0, false, fmt.Errorf("failed to record usage event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return used, true, nil
}

// PruneUsage deletes counters and events untouched since before
func (s *PostgresStore) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_events WHERE created_at < $1`, before); err != nil {
		return 0, fmt.Errorf("failed to prune usage events: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM usage_counters WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage counters: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}
