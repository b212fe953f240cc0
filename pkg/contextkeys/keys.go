// Package contextkeys provides centralized context key definitions
//
// All context keys shared across packages are defined here so that values
// set by middleware can be read by handlers and loggers without collisions.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/beacon/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, id)
//	id, _ := ctx.Value(contextkeys.RequestIDKey).(string)
package contextkeys

import (
	"context"
	"time"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, webhook deliveries
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RequestStartTimeKey contains request start timestamp
	// Set by: httputil.RequestIDMiddleware
	// Used by: Duration calculation in access logs
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// String returns the string representation of the key
func (k Key) String() string {
	return string(k)
}

// WithRequestStart stores the request start time in the context
func WithRequestStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, t)
}

// RequestStart returns the request start time, if set
func RequestStart(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(RequestStartTimeKey).(time.Time)
	return t, ok
}
