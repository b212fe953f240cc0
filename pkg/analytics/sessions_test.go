package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/telemetry"
)

func TestGetSession_InstallThenDeploy(t *testing.T) {
	f := newFixture(t, false)
	f.track(t, map[string]interface{}{"sessionId": "s1", "step": "install", "status": "completed", "timestamp": "2024-01-01T00:00:00Z"})
	f.track(t, map[string]interface{}{"sessionId": "s1", "step": "deploy", "status": "success", "timestamp": "2024-01-01T00:05:00Z"})

	summary, err := f.service.Sessions().GetSession(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "s1", summary.SessionID)
	assert.True(t, summary.Success)
	assert.Equal(t, 300.0, summary.DurationSeconds)
	assert.Equal(t, UnknownOS, summary.OSDescriptor)
	assert.Equal(t, 2, summary.EventCount)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t, false)
	f.track(t, map[string]interface{}{"sessionId": "s1", "step": "install", "status": "failure"})

	_, err := f.service.Sessions().GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "session", nf.Resource)
	assert.Equal(t, "missing", nf.ID)

	// an existing failed session is not a not-found
	summary, err := f.service.Sessions().GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, summary.Success)
}

func TestGetSessionEvents_OrderAndTies(t *testing.T) {
	f := newFixture(t, false)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f.track(t, ev("s1", "deploy", "success", ts.Add(time.Minute)))
	first := f.track(t, ev("s1", "install", "started", ts))
	second := f.track(t, ev("s1", "install", "completed", ts))

	events, err := f.service.Sessions().GetSessionEvents(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, first, events[0].ID)
	assert.Equal(t, second, events[1].ID)
	assert.Equal(t, "deploy", events[2].StepName())
}

func TestGetSession_Idempotent(t *testing.T) {
	f := newFixture(t, false)
	seedTwoSessions(t, f)

	a, err := f.service.Sessions().GetSession(context.Background(), "s1")
	require.NoError(t, err)
	b, err := f.service.Sessions().GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSummarize(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	event := func(offset time.Duration, step, status string) *telemetry.Event {
		return &telemetry.Event{
			SessionID: telemetry.StringPtr("s1"),
			Step:      telemetry.StringPtr(step),
			Status:    telemetry.StringPtr(status),
			Timestamp: ts.Add(offset),
		}
	}

	t.Run("no events", func(t *testing.T) {
		assert.Nil(t, Summarize("s1", nil))
	})

	t.Run("unordered events", func(t *testing.T) {
		events := []*telemetry.Event{
			event(10*time.Minute, "deploy", "success"),
			event(0, "install", "started"),
			event(4*time.Minute, "install", "completed"),
		}
		s := Summarize("s1", events)
		assert.Equal(t, 600.0, s.DurationSeconds)
		assert.Equal(t, ts, s.StartedAt)
		assert.Equal(t, ts.Add(10*time.Minute), s.EndedAt)
		assert.True(t, s.Success)
	})

	t.Run("install completed alone is not success", func(t *testing.T) {
		s := Summarize("s1", []*telemetry.Event{event(0, "install", "completed")})
		assert.False(t, s.Success)
		assert.Equal(t, 0.0, s.DurationSeconds)
	})

	t.Run("os from earliest os-bearing event", func(t *testing.T) {
		late := event(5*time.Minute, "deploy", "failure")
		late.OSName = telemetry.StringPtr("Windows")
		early := event(time.Minute, "install", "completed")
		early.OSName = telemetry.StringPtr("Ubuntu")
		early.OSVersion = telemetry.StringPtr("22.04")
		tie := event(time.Minute, "install", "completed")
		tie.OSName = telemetry.StringPtr("Debian")

		s := Summarize("s1", []*telemetry.Event{event(0, "install", "started"), late, early, tie})
		assert.Equal(t, "Ubuntu 22.04", s.OSDescriptor)
		assert.Equal(t, "Ubuntu", s.OSName)
	})

	t.Run("identity fields", func(t *testing.T) {
		a := event(0, "install", "started")
		a.AnonymousID = telemetry.StringPtr("anon-1")
		b := event(time.Minute, "deploy", "success")
		b.Username = telemetry.StringPtr("alice")

		s := Summarize("s1", []*telemetry.Event{a, b})
		assert.Equal(t, "anon-1", s.AnonymousID)
		assert.Equal(t, "alice", s.Username)
	})
}

func TestGroupSessions_SkipsEventsWithoutSession(t *testing.T) {
	events := []*telemetry.Event{
		{SessionID: telemetry.StringPtr("b"), Timestamp: testNow},
		{Timestamp: testNow},
		{SessionID: telemetry.StringPtr("a"), Timestamp: testNow},
		{SessionID: telemetry.StringPtr("b"), Timestamp: testNow.Add(time.Second)},
	}

	sessions := groupSessions(events)
	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].SessionID)
	assert.Equal(t, 2, sessions[0].EventCount)
	assert.Equal(t, "a", sessions[1].SessionID)
}
