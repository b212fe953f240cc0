package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// UnknownOS is reported for sessions without any OS-bearing event
const UnknownOS = "Unknown"

// SessionSummary is the derived outcome of one installation attempt
type SessionSummary struct {
	SessionID       string    `json:"session_id"`
	Success         bool      `json:"success"`
	DurationSeconds float64   `json:"duration_seconds"`
	OSDescriptor    string    `json:"os_descriptor"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	EventCount      int       `json:"event_count"`
	AnonymousID     string    `json:"anonymous_id,omitempty"`
	Username        string    `json:"username,omitempty"`

	// osName of the first OS-bearing event, "" when none
	OSName string `json:"-"`
}

// SessionAggregator derives per-session outcomes from raw events
type SessionAggregator struct {
	source source
}

// NewSessionAggregator creates a new session aggregator
func NewSessionAggregator(store EventSource, metrics *observability.Metrics) *SessionAggregator {
	return &SessionAggregator{source: source{store: store, metrics: metrics}}
}

// GetSessionEvents returns the session's events ascending by timestamp.
// A session without events is a *NotFoundError.
func (a *SessionAggregator) GetSessionEvents(ctx context.Context, sessionID string) ([]*telemetry.Event, error) {
	if sessionID == "" {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}

	events, err := a.source.find(ctx, storage.Query{
		Filter: storage.Filter{SessionID: sessionID},
		Sort:   storage.SortAscending,
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	return events, nil
}

// GetSession returns the derived summary of a session
func (a *SessionAggregator) GetSession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	events, err := a.GetSessionEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Summarize(sessionID, events), nil
}

// loadSessions summarizes every session with events matching filter, in
// order of each session's first stored event. Events without a session id
// are returned separately.
func (a *SessionAggregator) loadSessions(ctx context.Context, filter storage.Filter) ([]*SessionSummary, []*telemetry.Event, error) {
	events, err := a.source.find(ctx, storage.Query{Filter: filter, Sort: storage.SortAscending})
	if err != nil {
		return nil, nil, err
	}
	return groupSessions(events), events, nil
}

// loadUserEvents returns every event attributable to username since the
// given time: events carrying the username, events of the anonymous ids
// it was seen with, and every event of the sessions either touched.
// Sessions are loaded whole so each is summarized from all its events.
func (a *SessionAggregator) loadUserEvents(ctx context.Context, username string, since *time.Time) ([]*telemetry.Event, error) {
	named, err := a.source.find(ctx, storage.Query{
		Filter: storage.Filter{Username: username, Since: since},
		Sort:   storage.SortAscending,
	})
	if err != nil || len(named) == 0 {
		return nil, err
	}

	direct := named
	seenAnon := make(map[string]bool)
	for _, e := range named {
		if e.AnonymousID == nil || *e.AnonymousID == "" || seenAnon[*e.AnonymousID] {
			continue
		}
		seenAnon[*e.AnonymousID] = true
		anonEvents, err := a.source.find(ctx, storage.Query{
			Filter: storage.Filter{AnonymousID: *e.AnonymousID, Since: since},
			Sort:   storage.SortAscending,
		})
		if err != nil {
			return nil, err
		}
		direct = append(direct, anonEvents...)
	}

	sessionIDs := make([]string, 0)
	seenSession := make(map[string]bool)
	for _, e := range direct {
		if sid := e.SessionKey(); sid != "" && !seenSession[sid] {
			seenSession[sid] = true
			sessionIDs = append(sessionIDs, sid)
		}
	}

	events := make([]*telemetry.Event, 0, len(direct))
	if len(sessionIDs) > 0 {
		events, err = a.source.find(ctx, storage.Query{
			Filter: storage.Filter{SessionIDs: sessionIDs, Since: since},
			Sort:   storage.SortAscending,
		})
		if err != nil {
			return nil, err
		}
	}

	seenEvent := make(map[string]bool)
	for _, e := range direct {
		if e.SessionKey() != "" || seenEvent[e.ID] {
			continue
		}
		seenEvent[e.ID] = true
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func groupSessions(events []*telemetry.Event) []*SessionSummary {
	order := make([]string, 0)
	bySession := make(map[string][]*telemetry.Event)
	for _, e := range events {
		id := e.SessionKey()
		if id == "" {
			continue
		}
		if _, ok := bySession[id]; !ok {
			order = append(order, id)
		}
		bySession[id] = append(bySession[id], e)
	}

	summaries := make([]*SessionSummary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, Summarize(id, bySession[id]))
	}
	return summaries
}

// Summarize derives a session outcome. Events may be in any order; among
// equal timestamps the earlier slice element counts as first. It returns
// nil for no events.
//
// A session succeeds iff one of its events is deploy/success.
func Summarize(sessionID string, events []*telemetry.Event) *SessionSummary {
	if len(events) == 0 {
		return nil
	}

	summary := &SessionSummary{
		SessionID:    sessionID,
		OSDescriptor: UnknownOS,
		StartedAt:    events[0].Timestamp,
		EndedAt:      events[0].Timestamp,
		EventCount:   len(events),
	}

	var osEvent, anonEvent, userEvent *telemetry.Event
	earlier := func(candidate, current *telemetry.Event) bool {
		return current == nil || candidate.Timestamp.Before(current.Timestamp)
	}

	for _, e := range events {
		if e.Timestamp.Before(summary.StartedAt) {
			summary.StartedAt = e.Timestamp
		}
		if e.Timestamp.After(summary.EndedAt) {
			summary.EndedAt = e.Timestamp
		}
		if e.IsDeploySuccess() {
			summary.Success = true
		}
		if e.HasOS() && earlier(e, osEvent) {
			osEvent = e
		}
		if e.AnonymousID != nil && *e.AnonymousID != "" && earlier(e, anonEvent) {
			anonEvent = e
		}
		if e.IsNamed() && earlier(e, userEvent) {
			userEvent = e
		}
	}

	summary.DurationSeconds = summary.EndedAt.Sub(summary.StartedAt).Seconds()
	if osEvent != nil {
		summary.OSDescriptor = osEvent.OSDescriptor()
		summary.OSName = *osEvent.OSName
	}
	if anonEvent != nil {
		summary.AnonymousID = *anonEvent.AnonymousID
	}
	if userEvent != nil {
		summary.Username = *userEvent.Username
	}

	return summary
}

// sortByStartDesc orders sessions by start time, most recent first
func sortByStartDesc(sessions []*SessionSummary) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
}
