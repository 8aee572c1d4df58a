package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/swapmeet/pkg/observability"
)

const (
	activePlansKey = "plans:active"
	planKeyPrefix  = "plans:code:"
)

// CachedPlanStore fronts a PlanStore with an in-process LRU and an optional Redis tier.
// Plans change rarely, so entries simply expire after ttl; Invalidate drops both tiers.
type CachedPlanStore struct {
	next    PlanStore
	l1      *lru.LRU[string, []PlanRecord]
	redis   *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCachedPlanStore wraps next. redisClient may be nil.
func NewCachedPlanStore(next PlanStore, redisClient *redis.Client, size int, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *CachedPlanStore {
	if size <= 0 {
		size = 64
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CachedPlanStore{
		next:    next,
		l1:      lru.NewLRU[string, []PlanRecord](size, nil, ttl),
		redis:   redisClient,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// ListActivePlans serves the active catalog from cache when possible
func (c *CachedPlanStore) ListActivePlans(ctx context.Context) ([]PlanRecord, error) {
	return c.load(ctx, activePlansKey, func() ([]PlanRecord, error) {
		return c.next.ListActivePlans(ctx)
	})
}

// GetPlanByCode serves a single plan from cache when possible
func (c *CachedPlanStore) GetPlanByCode(ctx context.Context, code string) (*PlanRecord, error) {
	records, err := c.load(ctx, planKeyPrefix+code, func() ([]PlanRecord, error) {
		rec, err := c.next.GetPlanByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		return []PlanRecord{*rec}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrPlanNotFound
	}
	rec := records[0]
	return &rec, nil
}

// Invalidate drops every cached catalog entry, including Redis entries written by other instances
func (c *CachedPlanStore) Invalidate(ctx context.Context) {
	c.l1.Purge()
	if c.redis == nil {
		return
	}

	keys := []string{activePlansKey}
	iter := c.redis.Scan(ctx, 0, planKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("failed to scan plan cache keys")
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).Warn("failed to invalidate plan cache in redis")
	}
}

func (c *CachedPlanStore) load(ctx context.Context, key string, fetch func() ([]PlanRecord, error)) ([]PlanRecord, error) {
	if records, ok := c.l1.Get(key); ok {
		c.metrics.RecordCacheHit("plans", "l1")
		return clonePlanRecords(records), nil
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var records []PlanRecord
			if jsonErr := json.Unmarshal(data, &records); jsonErr == nil {
				c.metrics.RecordCacheHit("plans", "l2")
				c.l1.Add(key, records)
				return clonePlanRecords(records), nil
			}
		case !errors.Is(err, redis.Nil):
			// Redis trouble is not a catalog outage
			c.logger.WithError(err).Warn("plan cache read failed")
		}
	}

	c.metrics.RecordCacheMiss("plans")
	records, err := fetch()
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, records)
	if c.redis != nil {
		if data, err := json.Marshal(records); err == nil {
			if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.logger.WithError(err).Warn("plan cache write failed")
			}
		}
	}
	return clonePlanRecords(records), nil
}

func clonePlanRecords(in []PlanRecord) []PlanRecord {
	out := make([]PlanRecord, len(in))
	copy(out, in)
	return out
}
