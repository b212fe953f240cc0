package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache implements ReportCache with an in-process expirable LRU
type MemoryCache struct {
	config     Config
	cache      *lru.LRU[string, []byte]
	generation atomic.Int64
	metrics    *metrics
}

// NewMemoryCache creates a new in-process cache
func NewMemoryCache(config Config) *MemoryCache {
	size := config.Size
	if size < 10 {
		size = 10
	}

	return &MemoryCache{
		config:  config,
		cache:   lru.NewLRU[string, []byte](size, nil, config.TTL),
		metrics: newMetrics(),
	}
}

// Get implements ReportCache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidCacheKey
	}

	value, ok := c.cache.Get(key)
	if !ok {
		c.metrics.recordMiss()
		return nil, ErrCacheMiss
	}

	c.metrics.recordHit()
	return value, nil
}

// Set implements ReportCache
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	if value == nil {
		return fmt.Errorf("value cannot be nil")
	}

	c.cache.Add(key, value)
	return nil
}

// Generation implements ReportCache
func (c *MemoryCache) Generation(ctx context.Context) (int64, error) {
	return c.generation.Load(), nil
}

// Invalidate implements ReportCache. Entries of older generations can no
// longer be addressed and are purged eagerly.
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.cache.Purge()
	return nil
}

// Stats implements ReportCache
func (c *MemoryCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:       c.metrics.getHits(),
		Misses:     c.metrics.getMisses(),
		ItemCount:  int64(c.cache.Len()),
		Generation: c.generation.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return stats, nil
}

// Close releases resources
func (c *MemoryCache) Close() error {
	c.cache.Purge()
	return nil
}

// metrics tracks cache metrics
type metrics struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) recordHit() {
	m.hits.Add(1)
}

func (m *metrics) recordMiss() {
	m.misses.Add(1)
}

func (m *metrics) getHits() int64 {
	return m.hits.Load()
}

func (m *metrics) getMisses() int64 {
	return m.misses.Load()
}
