package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/cache"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

var testNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC) // a Wednesday

type fixture struct {
	store   *storage.MemoryStore
	tracker *EventTracker
	service *Service
	metrics *observability.Metrics
	cache   *cache.MemoryCache
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()

	f := &fixture{
		store:   storage.NewMemoryStore(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	opts := Options{
		Metrics: f.metrics,
		Logger:  observability.NewLogger(observability.ErrorLevel, io.Discard),
		Now:     func() time.Time { return testNow },
	}
	if withCache {
		f.cache = cache.NewMemoryCache(cache.Config{Enabled: true, TTL: time.Minute, Size: 16})
		opts.Cache = f.cache
	}
	f.tracker = NewEventTracker(f.store, opts)
	f.service = NewService(f.store, opts)
	return f
}

func (f *fixture) track(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	id, err := f.tracker.Track(context.Background(), payload)
	require.NoError(t, err)
	return id
}

func ev(session, step, status string, ts time.Time, extra ...map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"sessionId": session,
		"step":      step,
		"status":    status,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	}
	for _, m := range extra {
		for k, v := range m {
			payload[k] = v
		}
	}
	return payload
}

// failingStore fails every read
type failingStore struct {
	err error
}

func (s failingStore) Find(ctx context.Context, q storage.Query) ([]*telemetry.Event, error) {
	return nil, s.err
}

func (s failingStore) Count(ctx context.Context, f storage.Filter) (int64, error) {
	return 0, s.err
}

func (s failingStore) Aggregate(ctx context.Context, f storage.Filter, fields ...storage.Field) ([]storage.Group, error) {
	return nil, s.err
}

func seedTwoSessions(t *testing.T, f *fixture) {
	t.Helper()
	day := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	// s1 succeeds on Ubuntu in 300 seconds
	f.track(t, ev("s1", "install", "completed", day, map[string]interface{}{"osName": "Ubuntu", "osVersion": "22.04"}))
	f.track(t, ev("s1", "deploy", "success", day.Add(5*time.Minute)))

	// s2 fails later and never reports an OS
	f.track(t, ev("s2", "install", "failure", day.Add(time.Hour)))
	f.track(t, ev("s2", "install", "failure", day.Add(time.Hour+100*time.Second)))
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, false)
	seedTwoSessions(t, f)
	f.track(t, map[string]interface{}{"step": "install"}) // no session, no status

	stats, err := f.service.GetStats(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.SuccessfulInstalls)
	assert.Equal(t, 50.0, stats.SuccessRate)
	assert.Equal(t, map[string]int{"Ubuntu": 1}, stats.InstallationByOS)
	assert.Equal(t, 200.0, stats.AvgInstallTime)
	assert.Equal(t, map[string]map[string]int64{
		"install": {"completed": 1, "failure": 2, "unknown": 1},
		"deploy":  {"success": 1},
	}, stats.StepsStatus)
}

func TestGetStats_Empty(t *testing.T) {
	f := newFixture(t, false)

	stats, err := f.service.GetStats(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Equal(t, 0.0, stats.AvgInstallTime)
	assert.Empty(t, stats.InstallationByOS)
	assert.Empty(t, stats.StepsStatus)
}

func TestGetStats_StartDateAppliesToEverySubReport(t *testing.T) {
	f := newFixture(t, false)
	seedTwoSessions(t, f)

	start := time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC)
	stats, err := f.service.GetStats(context.Background(), &start)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 0, stats.SuccessfulInstalls)
	assert.Empty(t, stats.InstallationByOS)
	assert.Equal(t, map[string]map[string]int64{"install": {"failure": 2}}, stats.StepsStatus)
}

func TestGetStats_Invariants(t *testing.T) {
	f := newFixture(t, false)
	seedTwoSessions(t, f)
	f.track(t, ev("s3", "install", "completed", testNow, map[string]interface{}{"osName": "macOS"}))
	f.track(t, ev("s3", "deploy", "success", testNow.Add(-time.Minute)))

	stats, err := f.service.GetStats(context.Background(), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.SuccessRate, 0.0)
	assert.LessOrEqual(t, stats.SuccessRate, 100.0)
	assert.GreaterOrEqual(t, stats.AvgInstallTime, 0.0)

	osTotal := 0
	for _, n := range stats.InstallationByOS {
		osTotal += n
	}
	assert.LessOrEqual(t, osTotal, stats.TotalSessions)
}

func TestGetStats_Cached(t *testing.T) {
	f := newFixture(t, true)
	seedTwoSessions(t, f)
	ctx := context.Background()

	first, err := f.service.GetStats(ctx, nil)
	require.NoError(t, err)
	second, err := f.service.GetStats(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHitsTotal.WithLabelValues("stats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheMissesTotal.WithLabelValues("stats")))

	// an ingest starts a new generation, so the next read recomputes
	f.track(t, ev("s3", "deploy", "success", testNow))
	third, err := f.service.GetStats(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, third.TotalSessions)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheMissesTotal.WithLabelValues("stats")))
}

func TestGetStats_StorageError(t *testing.T) {
	cause := errors.New("connection reset")
	service := NewService(failingStore{err: cause}, Options{Logger: observability.NewLogger(observability.ErrorLevel, io.Discard)})

	_, err := service.GetStats(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "find", storageErr.Op)
}

func TestGetRecentSessions(t *testing.T) {
	f := newFixture(t, false)
	seedTwoSessions(t, f)
	ctx := context.Background()

	all, err := f.service.GetRecentSessions(ctx, RecentQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "s2", all[0].SessionID)
	assert.Equal(t, "s1", all[1].SessionID)
	assert.Equal(t, "Unknown", all[0].OS)
	assert.Equal(t, "Ubuntu 22.04", all[1].OS)
	assert.Equal(t, 300.0, all[1].DurationSeconds)

	yes := true
	successful, err := f.service.GetRecentSessions(ctx, RecentQuery{Success: &yes})
	require.NoError(t, err)
	require.Len(t, successful, 1)
	assert.Equal(t, "s1", successful[0].SessionID)
	assert.True(t, successful[0].Success)

	no := false
	failed, err := f.service.GetRecentSessions(ctx, RecentQuery{Success: &no})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "s2", failed[0].SessionID)

	limited, err := f.service.GetRecentSessions(ctx, RecentQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "s2", limited[0].SessionID)
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 10},
		{-3, 10},
		{1, 1},
		{50, 50},
		{100, 100},
		{1000, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampLimit(tt.in), "limit %d", tt.in)
	}
}

func TestParseStartDate(t *testing.T) {
	ts, err := ParseStartDate("")
	assert.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = ParseStartDate("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *ts)

	ts, err = ParseStartDate("2024-01-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Hour())

	_, err = ParseStartDate("yesterday")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetDashboard(t *testing.T) {
	f := newFixture(t, false)
	seedTwoSessions(t, f)

	dashboard, err := f.service.GetDashboard(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, dashboard.Stats.TotalSessions)
	assert.Equal(t, "2024-03-13", dashboard.Trends.Today.Period)
	assert.Equal(t, "2024-03-11", dashboard.Trends.ThisWeek.Period)
	assert.Equal(t, 2, dashboard.Trends.ThisWeek.Total)
	assert.Empty(t, dashboard.Anomalies)
	assert.Equal(t, testNow, dashboard.GeneratedAt)
}

func TestGetDashboard_StorageError(t *testing.T) {
	service := NewService(failingStore{err: errors.New("down")}, Options{Logger: observability.NewLogger(observability.ErrorLevel, io.Discard)})

	_, err := service.GetDashboard(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestReportDurationsObserved(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.service.GetTrends(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.ReportDuration, "beacon_report_duration_seconds"))
}

func TestErrorHelpers(t *testing.T) {
	nf := &NotFoundError{Resource: "session", ID: "s9"}
	assert.EqualError(t, nf, "session s9 not found")
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsNotFound(errors.New("other")))

	assert.Equal(t, 0.0, rate(3, 0))
	assert.Equal(t, 75.0, rate(3, 4))
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 2.0, mean([]float64{1, 3}))
	assert.Equal(t, 0.0, ratio(1, 0))
}
