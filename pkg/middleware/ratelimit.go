package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// RateLimitConfig defines ingest rate limiting configuration
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // "memory" or "redis"
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int `yaml:"requests_per_window"`
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration `yaml:"window"`
	// BurstSize allows temporary bursts above the rate (memory backend only)
	BurstSize int    `yaml:"burst"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		Backend:           "memory",
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         60,
		KeyPrefix:         "beacon:ratelimit",
	}
}

// Limiter decides whether a client may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	Limit() int
	Window() time.Duration
}

// RateLimiter implements rate limiting using token bucket algorithm
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new in-process rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	d := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = d.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = d.WindowDuration
	}
	if config.BurstSize < 0 {
		config.BurstSize = 0
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() float64 {
	return float64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// getBucket returns the bucket for key, refilled up to now
func (rl *RateLimiter) getBucket(key string) *bucket {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	elapsed := now.Sub(b.lastUpdate)
	if elapsed > 0 {
		b.tokens = math.Min(rl.capacity(), b.tokens+elapsed.Seconds()*float64(rl.config.RequestsPerWindow)/rl.config.WindowDuration.Seconds())
		b.lastUpdate = now
	}
	b.mu.Unlock()
	return b
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	b := rl.getBucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Remaining returns the number of whole tokens left for a key
func (rl *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	rl.mu.RLock()
	_, exists := rl.buckets[key]
	rl.mu.RUnlock()
	if !exists {
		return int(rl.capacity()), nil
	}

	b := rl.getBucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.tokens), nil
}

// Limit returns the steady-state requests per window
func (rl *RateLimiter) Limit() int {
	return rl.config.RequestsPerWindow
}

// Window returns the refill window
func (rl *RateLimiter) Window() time.Duration {
	return rl.config.WindowDuration
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimit limits requests per client IP. Limiter errors fail open.
func RateLimit(limiter Limiter, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ip:" + ClientIP(r)

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.WithError(err).WithField("key", key).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))

			if !allowed {
				metrics.RecordIngestError("rate_limited")
				rateLimitExceeded(w, limiter)
				return
			}

			if remaining, err := limiter.Remaining(ctx, key); err == nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitResponse is the 429 body
type RateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

func rateLimitExceeded(w http.ResponseWriter, limiter Limiter) {
	retryAfter := int(math.Ceil(limiter.Window().Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	_ = httputil.WriteJSON(w, http.StatusTooManyRequests, RateLimitResponse{
		Error:      "rate limit exceeded",
		RetryAfter: retryAfter,
	})
}

// ClientIP returns the originating client address, honoring proxy headers
func ClientIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
