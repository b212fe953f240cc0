package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/cache"
)

// setupRedisCacheTest creates a miniredis instance and a cache on top of it
func setupRedisCacheTest(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := cache.DefaultConfig()
	cfg.Backend = "redis"
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.TTL = time.Minute

	c, err := NewRedisCache(cfg)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis cache: %v", err)
	}

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})

	return c, mr
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(cache.Config{RedisURL: "invalid://url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestNewRedisCache_ConnectionFailure(t *testing.T) {
	_, err := NewRedisCache(cache.Config{RedisURL: "redis://127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestRedisCache_GetSet(t *testing.T) {
	c, mr := setupRedisCacheTest(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "0:stats:all")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "0:stats:all", []byte(`{"total_sessions":2}`)))

	value, err := c.Get(ctx, "0:stats:all")
	require.NoError(t, err)
	assert.Equal(t, `{"total_sessions":2}`, string(value))

	// stored under the prefix with a TTL
	assert.True(t, mr.Exists("beacon:report:0:stats:all"))
	assert.Equal(t, time.Minute, mr.TTL("beacon:report:0:stats:all"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "0:stats:all")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedisCache_Generation(t *testing.T) {
	c, mr := setupRedisCacheTest(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Invalidate(ctx))

	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	require.NoError(t, mr.Set("beacon:report:generation", "garbage"))
	_, err = c.Generation(ctx)
	assert.Error(t, err)
}

func TestRedisCache_Stats(t *testing.T) {
	c, _ := setupRedisCacheTest(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "0:a", []byte("1")))
	require.NoError(t, c.Set(ctx, "0:b", []byte("2")))
	require.NoError(t, c.Invalidate(ctx))

	_, _ = c.Get(ctx, "0:a")
	_, _ = c.Get(ctx, "1:a")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ItemCount)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Generation)
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := setupRedisCacheTest(t)
	mr.Close()

	_, err := c.Get(context.Background(), "0:a")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrCacheMiss)
	assert.Error(t, c.Ping(context.Background()))
}

func TestRedisCache_Interface(t *testing.T) {
	var _ cache.ReportCache = (*RedisCache)(nil)
}
