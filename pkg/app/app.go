package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/cache"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/storage/postgres"
)

// Resources holds the backends opened from a Config
type Resources struct {
	Store storage.EventStore
	// DB is set for SQL-backed stores only
	DB *sql.DB
	// Cache is nil when report caching is disabled
	Cache cache.ReportCache
	// Redis is shared by the report cache and the distributed rate limiter
	Redis *redis.Client

	closers []func() error
}

// NewLogger builds the process logger from the observability section
func NewLogger(cfg config.ObservabilityConfig, output io.Writer) *observability.Logger {
	if output == nil {
		output = os.Stdout
	}
	return observability.NewLoggerWithFormat(cfg.Level(), output, cfg.LogFormat)
}

// OpenStore opens the event store selected by cfg.Type. The returned
// *sql.DB is nil unless the store is postgres or sqlite.
func OpenStore(cfg storage.Config, logger *observability.Logger) (storage.EventStore, *sql.DB, error) {
	switch cfg.Type {
	case "", "memory":
		return storage.NewMemoryStore(), nil, nil
	case "filesystem":
		store, err := storage.NewFileSystemStore(cfg.FilesystemRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open filesystem store: %w", err)
		}
		return store, nil, nil
	case "postgres", "sqlite":
		store, err := postgres.NewStore(cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Type, err)
		}
		return store, store.DB(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// OpenCache opens the report cache. Both return values are nil when caching
// is disabled; the client is only set for the redis backend.
func OpenCache(cfg cache.Config) (cache.ReportCache, *redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryCache(cfg), nil, nil
	case "redis":
		rc, err := postgres.NewRedisCache(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect report cache: %w", err)
		}
		return rc, rc.GetClient(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// Open opens the store, the report cache and, when the rate limiter needs
// it, a Redis client. On error everything opened so far is closed.
func Open(cfg *config.Config, logger *observability.Logger) (*Resources, error) {
	res := &Resources{}

	store, db, err := OpenStore(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	res.Store, res.DB = store, db
	res.closers = append(res.closers, store.Close)

	reportCache, client, err := OpenCache(cfg.Cache)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	if reportCache != nil {
		res.Cache = reportCache
		res.closers = append(res.closers, reportCache.Close)
	}
	res.Redis = client

	rl := cfg.Server.RateLimit
	if rl.Enabled && rl.Backend == "redis" && res.Redis == nil {
		client, err := dialRedis(cfg.Cache)
		if err != nil {
			_ = res.Close()
			return nil, err
		}
		res.Redis = client
		res.closers = append(res.closers, client.Close)
	}

	return res, nil
}

func dialRedis(cfg cache.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Limiter builds the ingest rate limiter, or nil when rate limiting is off
func (r *Resources) Limiter(cfg middleware.RateLimitConfig) (middleware.Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return middleware.NewLimiter(cfg, r.Redis)
}

// Options assembles the analytics collaborators backed by these resources
func (r *Resources) Options(cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) analytics.Options {
	return analytics.Options{
		Cache:   r.Cache,
		Metrics: metrics,
		Logger:  logger,
		Alerts:  cfg.Anomaly,
	}
}

// HealthChecker reports on every opened backend
func (r *Resources) HealthChecker(version string) *observability.HealthChecker {
	checker := observability.NewHealthChecker(r.Store, r.DB, r.Redis)
	checker.SetVersion(version)
	return checker
}

// Close releases resources in reverse order of opening
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
