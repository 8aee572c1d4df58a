package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Catalog serves the plan catalog with normalized perks
type Catalog struct {
	store PlanStore
}

// NewCatalog creates a catalog over a plan store
func NewCatalog(store PlanStore) *Catalog {
	return &Catalog{store: store}
}

// ListActivePlans returns the active plans, cheapest first.
// Storage failures are reported as ErrCatalogUnavailable.
func (c *Catalog) ListActivePlans(ctx context.Context) ([]Plan, error) {
	records, err := c.store.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	plans := make([]Plan, 0, len(records))
	for _, rec := range records {
		plans = append(plans, rec.Normalized())
	}
	sortPlans(plans)
	return plans, nil
}

// GetPlanByCode returns a single active plan
func (c *Catalog) GetPlanByCode(ctx context.Context, code string) (*Plan, error) {
	rec, err := c.store.GetPlanByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if !rec.Plan.IsActive {
		return nil, ErrPlanNotFound
	}

	plan := rec.Normalized()
	return &plan, nil
}

// sortPlans orders by price then id. Stores already sort; this keeps cached
// and seeded lists in the same order.
func sortPlans(plans []Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].PriceCents != plans[j].PriceCents {
			return plans[i].PriceCents < plans[j].PriceCents
		}
		return plans[i].ID < plans[j].ID
	})
}
