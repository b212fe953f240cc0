// Package cache holds materialized report results between ingests.
//
// Callers qualify every key with the generation they read before computing
// the report. Invalidate starts a new generation, so a report computed
// before the latest ingest is never served. Entries also expire after the
// configured TTL.
package cache

import (
	"context"
	"time"
)

// ReportCache stores serialized reports keyed by an opaque string
type ReportCache interface {
	// Get returns the cached bytes for key or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key until the TTL elapses
	Set(ctx context.Context, key string, value []byte) error

	// Generation returns the current generation number
	Generation(ctx context.Context) (int64, error)

	// Invalidate starts a new generation
	Invalidate(ctx context.Context) error

	// Stats returns hit/miss counters
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// Stats represents cache statistics
type Stats struct {
	Hits       int64
	Misses     int64
	HitRate    float64
	ItemCount  int64
	Generation int64
}

// Config holds cache configuration
type Config struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"` // "memory" or "redis"
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"` // max entries for the memory backend

	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	KeyPrefix       string `yaml:"key_prefix"`
}

// DefaultConfig returns default cache configuration. Caching is off by default.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Backend:         "memory",
		TTL:             time.Minute,
		Size:            256,
		RedisURL:        "redis://localhost:6379/0",
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		KeyPrefix:       "beacon:report:",
	}
}
