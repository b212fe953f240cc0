package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/beacon/pkg/cache"
)

// RedisCache implements cache.ReportCache on Redis so that every API replica
// shares one materialized view and one generation counter
type RedisCache struct {
	client *redis.Client
	config cache.Config
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache parses config.RedisURL, applies overrides and pings the server
func NewRedisCache(config cache.Config) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, config cache.Config) *RedisCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = cache.DefaultConfig().KeyPrefix
	}
	return &RedisCache{client: client, config: config}
}

func (c *RedisCache) generationKey() string {
	return c.config.KeyPrefix + "generation"
}

// Get implements cache.ReportCache
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, cache.ErrInvalidCacheKey
	}

	data, err := c.client.Get(ctx, c.config.KeyPrefix+key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, cache.ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	c.hits.Add(1)
	return data, nil
}

// Set implements cache.ReportCache
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return cache.ErrInvalidCacheKey
	}

	if err := c.client.Set(ctx, c.config.KeyPrefix+key, value, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Generation implements cache.ReportCache. A missing counter is generation 0.
func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, c.generationKey()).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}

	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt generation counter %q: %w", raw, err)
	}
	return gen, nil
}

// Invalidate implements cache.ReportCache. Entries of older generations are
// left to expire by TTL.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis incr generation failed: %w", err)
	}
	return nil
}

// Stats implements cache.ReportCache. ItemCount is the number of report keys
// under the prefix.
func (c *RedisCache) Stats(ctx context.Context) (*cache.Stats, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, err
	}

	var items int64
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if iter.Val() != c.generationKey() {
			items++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}

	stats := &cache.Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		ItemCount:  items,
		Generation: gen,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats, nil
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for health checks
func (c *RedisCache) GetClient() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
