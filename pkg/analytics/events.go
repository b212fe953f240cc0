package analytics

import (
	"context"
	"time"

	"github.com/platinummonkey/beacon/pkg/cache"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// EventTracker ingests installer telemetry
type EventTracker struct {
	store   storage.EventWriter
	cache   cache.ReportCache
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewEventTracker creates a new event tracker
func NewEventTracker(store storage.EventWriter, opts Options) *EventTracker {
	opts = opts.withDefaults()
	return &EventTracker{
		store:   store,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Track normalizes payload, appends it to the store and returns the
// store-assigned id. Only store faults fail the call.
func (t *EventTracker) Track(ctx context.Context, payload map[string]interface{}) (string, error) {
	event := telemetry.Normalize(payload, t.now())

	start := time.Now()
	id, err := t.store.Insert(ctx, event)
	t.metrics.RecordStorageOperation("insert", time.Since(start), err)
	if err != nil {
		t.metrics.RecordIngestError("storage")
		return "", &StorageError{Op: "insert", Err: err}
	}

	t.metrics.RecordEventIngested(event.StepName(), event.StatusName())

	logger := loggerFor(ctx, t.logger)
	if t.cache != nil {
		if err := t.cache.Invalidate(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate report cache")
		}
	}

	logger.WithFields(map[string]interface{}{
		"event_id":   id,
		"session_id": event.SessionKey(),
		"step":       event.StepName(),
		"status":     event.StatusName(),
	}).Debug("Telemetry event stored")

	return id, nil
}
