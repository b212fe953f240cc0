package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements a fixed-window limit in Redis.
// This allows rate limits to be shared across multiple instances.
type DistributedRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config RateLimitConfig) *DistributedRateLimiter {
	d := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = d.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = d.WindowDuration
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = d.KeyPrefix
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
	}
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.config.KeyPrefix, key)
}

// Allow counts the request in the current window
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.redisKey(key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	// First hit opens the window
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return true, fmt.Errorf("redis error: %w", err)
		}
	}

	return count <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.redisKey(key)).Int()
	if err == redis.Nil {
		// Key doesn't exist, full quota available
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// Limit returns the requests allowed per window
func (rl *DistributedRateLimiter) Limit() int {
	return rl.config.RequestsPerWindow
}

// Window returns the window length
func (rl *DistributedRateLimiter) Window() time.Duration {
	return rl.config.WindowDuration
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.redisKey(key)).Result()
}

// Reset clears the rate limit for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.redisKey(key)).Err()
}

// NewLimiter builds the limiter selected by config.Backend. The redis
// backend requires a client.
func NewLimiter(config RateLimitConfig, redisClient *redis.Client) (Limiter, error) {
	switch config.Backend {
	case "", "memory":
		return NewRateLimiter(config), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis rate limiter requires a redis client")
		}
		return NewDistributedRateLimiter(redisClient, config), nil
	default:
		return nil, fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", config.Backend)
	}
}
