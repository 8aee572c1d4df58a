package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/observability"
	"github.com/platinummonkey/swapmeet/pkg/storage"
)

// Usage counter backends
const (
	UsageBackendPostgres = "postgres"
	UsageBackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Billing configuration
	Billing BillingConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string

	// Health/metrics server (separate port for k8s liveness and readiness)
	HealthPort string
}

// BillingConfig holds plan, quota and usage settings
type BillingConfig struct {
	// DefaultListingQuota is the listing allowance of the synthesized free plan
	DefaultListingQuota int

	// UsageBackend selects where usage counters live: postgres or redis
	UsageBackend string
	UsageTTL     time.Duration

	CatalogCacheTTL  time.Duration
	CatalogCacheSize int

	// PlansFile is an optional YAML catalog upserted at startup
	PlansFile string

	CreditRateLimitPerMinute int

	SessionCacheTTL  time.Duration
	SessionCacheSize int

	// Janitor
	UsageRetention  time.Duration
	SessionGrace    time.Duration
	JanitorSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SWAPMEET_HOST", "0.0.0.0"),
		Port:            getEnv("SWAPMEET_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SWAPMEET_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SWAPMEET_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SWAPMEET_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SWAPMEET_SHUTDOWN_TIMEOUT", 30*time.Second),
		RequestTimeout:  getEnvDuration("SWAPMEET_REQUEST_TIMEOUT", 10*time.Second),
		AllowedOrigins:  getEnvList("SWAPMEET_ALLOWED_ORIGINS"),
		HealthPort:      getEnv("SWAPMEET_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("SWAPMEET_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("SWAPMEET_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("SWAPMEET_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("SWAPMEET_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("SWAPMEET_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("SWAPMEET_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("SWAPMEET_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("SWAPMEET_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("SWAPMEET_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("SWAPMEET_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadBillingConfig loads billing configuration from environment
func loadBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultListingQuota:      getEnvInt("SWAPMEET_DEFAULT_LISTING_QUOTA", billing.DefaultListingQuota),
		UsageBackend:             strings.ToLower(getEnv("SWAPMEET_USAGE_BACKEND", UsageBackendPostgres)),
		UsageTTL:                 getEnvDuration("SWAPMEET_USAGE_TTL", 62*24*time.Hour),
		CatalogCacheTTL:          getEnvDuration("SWAPMEET_CATALOG_CACHE_TTL", 5*time.Minute),
		CatalogCacheSize:         getEnvInt("SWAPMEET_CATALOG_CACHE_SIZE", 64),
		PlansFile:                getEnv("SWAPMEET_PLANS_FILE", ""),
		CreditRateLimitPerMinute: getEnvInt("SWAPMEET_CREDIT_RATE_LIMIT", 60),
		SessionCacheTTL:          getEnvDuration("SWAPMEET_SESSION_CACHE_TTL", 30*time.Second),
		SessionCacheSize:         getEnvInt("SWAPMEET_SESSION_CACHE_SIZE", 10000),
		UsageRetention:           getEnvDuration("SWAPMEET_USAGE_RETENTION", 400*24*time.Hour),
		SessionGrace:             getEnvDuration("SWAPMEET_SESSION_GRACE", 7*24*time.Hour),
		JanitorSchedule:          getEnv("SWAPMEET_JANITOR_SCHEDULE", "@every 15m"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("SWAPMEET_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SWAPMEET_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SWAPMEET_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SWAPMEET_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SWAPMEET_OTEL_SERVICE_NAME", "swapmeet-billing"),
		OTelServiceVersion: getEnv("SWAPMEET_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SWAPMEET_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate billing config
	if c.Billing.DefaultListingQuota < 0 {
		return fmt.Errorf("default listing quota must not be negative")
	}
	switch c.Billing.UsageBackend {
	case UsageBackendPostgres:
	case UsageBackendRedis:
		if !c.Storage.RedisEnabled() {
			return fmt.Errorf("redis URL is required for the redis usage backend")
		}
	default:
		return fmt.Errorf("invalid usage backend: %s (must be postgres or redis)", c.Billing.UsageBackend)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
