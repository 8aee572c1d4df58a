// Package storage holds connection plumbing shared by the swapmeet binaries.
//
// Config describes where PostgreSQL and Redis live. NewRedisClient builds a
// pinged go-redis client from it; the pkg/storage/postgres subpackage manages
// the primary/replica pool that billing.PostgresStore reads and writes
// through.
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = os.Getenv("DATABASE_URL")
//	conns, err := postgres.NewConnectionManager(postgres.ConfigFromStorage(cfg), logger)
//
// Redis is optional. When RedisURL is empty the API runs with usage counters
// in PostgreSQL, an in-process catalog cache only, and rate limiting off.
package storage
