// Package middleware provides rate limiting for the ingestion endpoint.
//
// Installers are keyed by client IP (first X-Forwarded-For entry, then
// X-Real-IP, then the connection address).
//
// RateLimiter is an in-process token bucket:
//
//	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
//		RequestsPerWindow: 600,
//		WindowDuration:    time.Minute,
//		BurstSize:         60,
//	})
//	limiter.StartCleanup(ctx)
//
// DistributedRateLimiter keeps a fixed window per key in Redis so that
// every API replica shares the same budget:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg)
//
// Either is applied with RateLimit, which answers 429 with Retry-After when
// the budget is exhausted and fails open when the limiter errors.
package middleware
