package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, time.Minute, cfg.TTL)
	assert.Equal(t, "beacon:report:", cfg.KeyPrefix)
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(Config{Size: 10, TTL: time.Minute})
	ctx := context.Background()

	_, err := c.Get(ctx, "stats:all")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "stats:all", []byte(`{"total_sessions":1}`)))

	value, err := c.Get(ctx, "stats:all")
	require.NoError(t, err)
	assert.Equal(t, `{"total_sessions":1}`, string(value))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, int64(1), stats.ItemCount)
}

func TestMemoryCache_InvalidKeys(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	ctx := context.Background()

	_, err := c.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCacheKey)
	assert.ErrorIs(t, c.Set(ctx, "", []byte("x")), ErrInvalidCacheKey)
	assert.Error(t, c.Set(ctx, "k", nil))
}

func TestMemoryCache_InvalidateBumpsGeneration(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, c.Set(ctx, "0:stats:all", []byte("old")))
	require.NoError(t, c.Invalidate(ctx))

	_, err = c.Get(ctx, "0:stats:all")
	assert.ErrorIs(t, err, ErrCacheMiss)

	gen, _ = c.Generation(ctx)
	assert.Equal(t, int64(1), gen)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Generation)
	assert.Zero(t, stats.ItemCount)
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(Config{Size: 10, TTL: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stats:all", []byte("v")))
	time.Sleep(60 * time.Millisecond)

	_, err := c.Get(ctx, "stats:all")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Interface(t *testing.T) {
	var _ ReportCache = (*MemoryCache)(nil)
}
