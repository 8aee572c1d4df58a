// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from SWAPMEET_* environment
// variables with sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	SWAPMEET_HOST="0.0.0.0"
//	SWAPMEET_PORT="8080"
//	SWAPMEET_HEALTH_PORT="9090"
//	SWAPMEET_READ_TIMEOUT="15s"
//	SWAPMEET_REQUEST_TIMEOUT="10s"
//	SWAPMEET_ALLOWED_ORIGINS="https://swapmeet.example"
//
// Storage settings:
//
//	SWAPMEET_POSTGRES_URL="postgres://localhost/swapmeet"
//	SWAPMEET_POSTGRES_REPLICA_URLS="postgres://replica1/swapmeet,postgres://replica2/swapmeet"
//	SWAPMEET_POSTGRES_MAX_CONNS="20"
//	SWAPMEET_REDIS_URL="redis://localhost:6379"
//	SWAPMEET_REDIS_POOL_SIZE="10"
//
// Billing settings:
//
//	SWAPMEET_DEFAULT_LISTING_QUOTA="5"
//	SWAPMEET_USAGE_BACKEND="postgres"  # postgres, redis
//	SWAPMEET_CATALOG_CACHE_TTL="5m"
//	SWAPMEET_PLANS_FILE="/etc/swapmeet/plans.yaml"
//	SWAPMEET_CREDIT_RATE_LIMIT="60"  # per user per minute
//	SWAPMEET_USAGE_RETENTION="9600h"
//	SWAPMEET_JANITOR_SCHEDULE="@every 15m"
//
// Observability settings:
//
//	SWAPMEET_LOG_LEVEL="info"  # debug, info, warn, error
//	SWAPMEET_METRICS_ENABLED="true"
//	SWAPMEET_OTEL_ENABLED="true"
//	SWAPMEET_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The redis usage backend requires SWAPMEET_REDIS_URL. Without Redis the API
// keeps usage in Postgres, caches the catalog in process only and rate limits
// per replica.
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
