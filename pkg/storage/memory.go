package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// MemoryStore keeps events in process memory. It is the default backend for
// development and the fake used throughout the test suite.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*telemetry.Event
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements EventWriter
func (s *MemoryStore) Insert(ctx context.Context, event *telemetry.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	stored := cloneEvent(event)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	event.ID = stored.ID
	s.events = append(s.events, stored)

	return stored.ID, nil
}

// Find implements EventReader
func (s *MemoryStore) Find(ctx context.Context, query Query) ([]*telemetry.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	matched := make([]*telemetry.Event, 0)
	for _, e := range s.events {
		if query.Filter.Matches(e) {
			matched = append(matched, cloneEvent(e))
		}
	}

	// Stable sort keeps insertion order between equal timestamps
	if query.Sort == SortDescending {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		})
	}

	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}

	return matched, nil
}

// Count implements EventReader
func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var count int64
	for _, e := range s.events {
		if filter.Matches(e) {
			count++
		}
	}
	return count, nil
}

// Aggregate implements EventAggregator
func (s *MemoryStore) Aggregate(ctx context.Context, filter Filter, fields ...Field) ([]Group, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("aggregate requires at least one field")
	}
	for _, f := range fields {
		if !ValidField(f) {
			return nil, fmt.Errorf("invalid aggregate field: %s", f)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, e := range s.events {
		if !filter.Matches(e) {
			continue
		}
		keys := make([]string, len(fields))
		for i, f := range fields {
			keys[i] = FieldValue(e, f)
		}
		id := strings.Join(keys, "\x00")
		if pos, ok := index[id]; ok {
			groups[pos].Count++
			continue
		}
		index[id] = len(groups)
		groups = append(groups, Group{Keys: keys, Count: 1})
	}

	return groups, nil
}

// DeleteAll implements Admin
func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	n := int64(len(s.events))
	s.events = nil
	return n, nil
}

// HealthCheck implements HealthChecker
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the store. Subsequent operations return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// restore appends already-identified events without assigning ids
func (s *MemoryStore) restore(events []*telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func cloneEvent(e *telemetry.Event) *telemetry.Event {
	c := *e
	if e.Metrics != nil {
		c.Metrics = make(map[string]interface{}, len(e.Metrics))
		for k, v := range e.Metrics {
			c.Metrics[k] = v
		}
	}
	return &c
}
