package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/swapmeet/pkg/async"
	"github.com/platinummonkey/swapmeet/pkg/observability"
	"github.com/platinummonkey/swapmeet/pkg/storage"
)

// ConnectionManager holds the primary pool and any read replicas.
// It satisfies billing.DBProvider: plan catalog reads go to replicas, while
// subscriptions and usage counters always hit the primary.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	next     uint32 // round-robin cursor
	mu       sync.RWMutex
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConfigFromStorage maps the shared storage config onto pool settings
func ConfigFromStorage(cfg storage.Config) ConnectionConfig {
	return ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(cfg.PostgresReplicaURLs),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: cfg.PostgresMaxLifetime,
		MaxIdleTime: cfg.PostgresMaxIdleTime,
	}
}

// NewConnectionManager opens the primary and every reachable replica.
// The primary must answer a ping; replicas that do not are skipped.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	primary, err := openPool(config, config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	// replicas serve catalog reads only, so they get half the pool
	replicaConns := config.MaxConns / 2
	if replicaConns < 2 {
		replicaConns = 2
	}

	cm := &ConnectionManager{primary: primary, logger: logger}
	for i, url := range config.ReplicaURLs {
		replica, err := openPool(config, url, replicaConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("skipping unreachable replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("connection manager initialized")
	return cm, nil
}

func openPool(config ConnectionConfig, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Primary returns the pool used for writes and consistent reads
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns the next replica round-robin, or the primary when there are none
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	i := atomic.AddUint32(&cm.next, 1)
	return cm.replicas[int(i%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and every replica. A dead primary is an
// error; losing every replica wraps observability.ErrDegraded because
// catalog reads fall back to the primary.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := append([]*sql.DB(nil), cm.replicas...)
	cm.mu.RUnlock()

	var down []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			down = append(down, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(replicas) > 0 && len(down) == len(replicas) {
		return fmt.Errorf("%w: all replicas unhealthy: %s", observability.ErrDegraded, strings.Join(down, ", "))
	}
	return nil
}

// dropUnhealthyReplicas closes and forgets replicas that fail a ping
func (cm *ConnectionManager) dropUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	kept := cm.replicas[:0]
	dropped := 0
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			dropped++
			continue
		}
		kept = append(kept, replica)
	}
	cm.replicas = kept
	return dropped
}

func (cm *ConnectionManager) replicaCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.replicas)
}

// Close closes the primary and all replicas
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}
	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// StartHealthCheckRoutine periodically drops replicas that stop answering pings
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	async.Every(ctx, cm.log(), interval, "replica health check", func(ctx context.Context) {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if dropped := cm.dropUnhealthyReplicas(checkCtx); dropped > 0 {
			cm.log().WithField("dropped", dropped).Warn("dropped unhealthy replicas")
		}
	})
}

func (cm *ConnectionManager) log() *observability.Logger {
	if cm.logger == nil {
		return observability.NewNopLogger()
	}
	return cm.logger
}

// ParseReplicaURLs splits a comma-separated list, ignoring blanks
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	result := make([]string, 0)
	for _, url := range strings.Split(replicaURLsStr, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
