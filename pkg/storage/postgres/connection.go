package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Driver names registered with database/sql
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ConnectionManager owns the write pool and optional read replicas.
// Reports read from a replica; ingestion always writes to the primary.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // round-robin cursor
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	Driver      string // DriverPostgres (default) or DriverSQLite
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func (c ConnectionConfig) driver() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

// NewConnectionManager opens and pings the primary, then any replicas.
// Replicas that cannot be reached are skipped with a warning.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	primary, err := sql.Open(config.driver(), config.PrimaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}

	if config.driver() == DriverSQLite {
		// a single writer avoids "database is locked" and keeps :memory:
		// databases on one connection
		primary.SetMaxOpenConns(1)
	} else {
		configurePool(primary, config, config.MaxConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := primary.PingContext(ctx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	cm := newConnectionManager(primary, config, logger)
	logger = cm.logger

	if config.driver() == DriverPostgres {
		for i, replicaURL := range config.ReplicaURLs {
			if err := cm.AddReplica(replicaURL); err != nil {
				logger.WithError(err).WithField("replica", i).Warn("Skipping replica")
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"driver":   config.driver(),
		"replicas": len(cm.replicas),
	}).Info("Connection manager initialized")

	return cm, nil
}

// NewConnectionManagerFromDB wraps an already open handle as the primary
func NewConnectionManagerFromDB(db *sql.DB, logger *observability.Logger) *ConnectionManager {
	return newConnectionManager(db, ConnectionConfig{Timeout: 10 * time.Second}, logger)
}

func newConnectionManager(primary *sql.DB, config ConnectionConfig, logger *observability.Logger) *ConnectionManager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &ConnectionManager{
		primary:  primary,
		replicas: make([]*sql.DB, 0),
		config:   config,
		logger:   logger,
	}
}

func configurePool(db *sql.DB, config ConnectionConfig, maxConns int) {
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// AddReplica opens, pings and registers a read replica
func (cm *ConnectionManager) AddReplica(replicaURL string) error {
	replica, err := sql.Open(cm.config.driver(), replicaURL)
	if err != nil {
		return fmt.Errorf("failed to open replica connection: %w", err)
	}

	replicaMaxConns := cm.config.MaxConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}
	configurePool(replica, cm.config, replicaMaxConns)

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.Timeout)
	defer cancel()

	if err := replica.PingContext(ctx); err != nil {
		replica.Close()
		return fmt.Errorf("failed to ping replica: %w", err)
	}

	cm.mu.Lock()
	cm.replicas = append(cm.replicas, replica)
	cm.mu.Unlock()

	return nil
}

// HealthCheck pings the primary and every replica. Losing all replicas is
// reported as a degraded error even though reads fall back to the primary.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// RemoveUnhealthyReplicas drops replicas that fail a ping
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0

	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
		} else {
			healthy = append(healthy, replica)
		}
	}

	cm.replicas = healthy
	return removed
}

// StartHealthCheckRoutine prunes unhealthy replicas every interval until ctx
// is canceled
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	async.SafeGo(ctx, 0, cm.logger, "replica health check", func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				removed := cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()

				if removed > 0 {
					cm.logger.WithField("removed", removed).Warn("Removed unhealthy replicas")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// ConnectionStats holds statistics for all database connections
type ConnectionStats struct {
	Primary  sql.DBStats
	Replicas []sql.DBStats
}

// Stats returns connection pool statistics for primary and replicas
func (cm *ConnectionManager) Stats() ConnectionStats {
	stats := ConnectionStats{
		Primary: cm.primary.Stats(),
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats.Replicas = make([]sql.DBStats, len(cm.replicas))
	for i, replica := range cm.replicas {
		stats.Replicas[i] = replica.Stats()
	}

	return stats
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}

	return nil
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
