package analytics

import (
	"context"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// EventSource is the read side of the event store used by reports
type EventSource interface {
	storage.EventReader
	storage.EventAggregator
}

// source times every store call and wraps failures in *StorageError
type source struct {
	store   EventSource
	metrics *observability.Metrics
}

func (s source) find(ctx context.Context, query storage.Query) ([]*telemetry.Event, error) {
	start := time.Now()
	events, err := s.store.Find(ctx, query)
	if err := s.observe("find", start, err); err != nil {
		return nil, err
	}
	return events, nil
}

func (s source) count(ctx context.Context, filter storage.Filter) (int64, error) {
	start := time.Now()
	n, err := s.store.Count(ctx, filter)
	if err := s.observe("count", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

func (s source) aggregate(ctx context.Context, filter storage.Filter, fields ...storage.Field) ([]storage.Group, error) {
	start := time.Now()
	groups, err := s.store.Aggregate(ctx, filter, fields...)
	if err := s.observe("aggregate", start, err); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s source) observe(op string, start time.Time, err error) error {
	s.metrics.RecordStorageOperation(op, time.Since(start), err)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}
