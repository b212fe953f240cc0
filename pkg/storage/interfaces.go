package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage: store is closed")

// EventWriter appends events. Events are never updated in place.
type EventWriter interface {
	// Insert stores the event and returns the store-assigned id.
	// The id is also written back into event.ID.
	Insert(ctx context.Context, event *telemetry.Event) (string, error)
}

// EventReader queries stored events by secondary fields
type EventReader interface {
	// Find returns events matching the query, ordered by timestamp.
	// Events with equal timestamps keep insertion order.
	Find(ctx context.Context, query Query) ([]*telemetry.Event, error)

	// Count returns the number of events matching the filter
	Count(ctx context.Context, filter Filter) (int64, error)
}

// EventAggregator groups matching events by one or more fields
type EventAggregator interface {
	// Aggregate returns one Group per distinct combination of the given
	// fields. Null values are reported as empty strings.
	Aggregate(ctx context.Context, filter Filter, fields ...Field) ([]Group, error)
}

// Admin holds operations reserved for administrative tooling and tests
type Admin interface {
	// DeleteAll removes every event and returns how many were removed
	DeleteAll(ctx context.Context) (int64, error)
}

// HealthChecker reports backend availability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EventStore is the full capability set a backend provides
type EventStore interface {
	EventWriter
	EventReader
	EventAggregator
	Admin
	HealthChecker

	Close() error
}

// Config for storage backend
type Config struct {
	Type string `yaml:"type"` // "memory", "filesystem", "postgres", "sqlite"

	// Filesystem config
	FilesystemRoot string `yaml:"filesystem_root"`

	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs string        `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`

	// SQLite config
	SQLitePath string `yaml:"sqlite_path"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		FilesystemRoot:   "/tmp/beacon",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		SQLitePath:       "beacon.db",
	}
}
