package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/beacon/pkg/cache"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

const (
	// DefaultRecentLimit is used when no positive limit is given
	DefaultRecentLimit = 10
	// MaxRecentLimit caps the number of recent sessions returned
	MaxRecentLimit = 100

	// ActiveWindow is how recently an identity must have been seen to count as active
	ActiveWindow = 30 * 24 * time.Hour

	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Options carries the optional collaborators shared by every component
type Options struct {
	Cache   cache.ReportCache
	Metrics *observability.Metrics
	Logger  *observability.Logger
	Now     func() time.Time
	Alerts  AlertConfig
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Alerts = o.Alerts.withDefaults()
	return o
}

// ParseStartDate parses the start_date query parameter. An empty value
// means no lower bound; a malformed one is an ErrValidation.
func ParseStartDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, ok := telemetry.ParseTimestamp(raw)
	if !ok {
		return nil, fmt.Errorf("%w: invalid start_date %q", ErrValidation, raw)
	}
	return &ts, nil
}

// ClampLimit applies the recent-sessions default and bounds
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday opening the ISO week containing t
func weekStart(t time.Time) time.Time {
	d := dayStart(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func startKey(startDate *time.Time) string {
	if startDate == nil {
		return "all"
	}
	return startDate.UTC().Format(time.RFC3339Nano)
}

func loggerFor(ctx context.Context, base *observability.Logger) *observability.Logger {
	if id := observability.GetRequestID(ctx); id != "" {
		base = base.WithField("request_id", id)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, base)
}
