package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrementScript checks and increments one hash field atomically.
// KEYS[1] counter hash, ARGV[1] field, ARGV[2] quota, ARGV[3] ttl seconds.
// Returns {incremented (0|1), value}.
var incrementScript = redis.NewScript(`
local used = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local quota = tonumber(ARGV[2])
if quota < ` + strconv.Itoa(UnlimitedQuota) + ` and used >= quota then
	return {0, used}
end
used = redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return {1, used}
`)

// RedisUsageStore keeps usage counters in Redis hashes keyed by user and period.
// Listing references are not persisted; use PostgresStore when an audit trail is needed.
type RedisUsageStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisUsageStore creates a Redis-backed usage store. Counters expire ttl after their last write.
func NewRedisUsageStore(client *redis.Client, prefix string, ttl time.Duration) *RedisUsageStore {
	if prefix == "" {
		prefix = "usage"
	}
	if ttl <= 0 {
		ttl = 45 * 24 * time.Hour
	}
	return &RedisUsageStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisUsageStore) key(userID int64, periodKey string) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, userID, periodKey)
}

// GetUsage reads one counter
func (s *RedisUsageStore) GetUsage(ctx context.Context, userID int64, periodKey string, ct CreditType) (int, error) {
	used, err := s.client.HGet(ctx, s.key(userID, periodKey), string(ct)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return used, nil
}

// Increment runs the check-and-increment script
func (s *RedisUsageStore) Increment(ctx context.Context, userID int64, periodKey string, ct CreditType, quota int, listingID *int64) (int, bool, error) {
	res, err := incrementScript.Run(ctx, s.client,
		[]string{s.key(userID, periodKey)},
		string(ct), quota, int64(s.ttl/time.Second),
	).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected script result: %v", res)
	}
	incremented, _ := vals[0].(int64)
	used, _ := vals[1].(int64)

	return int(used), incremented == 1, nil
}
