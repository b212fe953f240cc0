package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/beacon/pkg/cache"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
)

// unknownLabel replaces null step/status tags in reports
const unknownLabel = "unknown"

// Service computes every report from raw events on demand
type Service struct {
	source   source
	sessions *SessionAggregator
	alerter  *Alerter
	cache    cache.ReportCache
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
}

// NewService creates a new statistics service
func NewService(store EventSource, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		source:   source{store: store, metrics: opts.Metrics},
		sessions: NewSessionAggregator(store, opts.Metrics),
		alerter:  NewAlerter(store, opts),
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Sessions returns the session aggregator sharing this service's store
func (s *Service) Sessions() *SessionAggregator {
	return s.sessions
}

// Alerter returns the anomaly detector sharing this service's store
func (s *Service) Alerter() *Alerter {
	return s.alerter
}

// Stats is the headline report
type Stats struct {
	TotalSessions      int                         `json:"total_sessions"`
	SuccessfulInstalls int                         `json:"successful_installs"`
	SuccessRate        float64                     `json:"success_rate"`
	InstallationByOS   map[string]int              `json:"installation_by_os"`
	StepsStatus        map[string]map[string]int64 `json:"steps_status"`
	AvgInstallTime     float64                     `json:"avg_install_time"`
}

// RecentSession is one row of the recent-sessions report
type RecentSession struct {
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	Success         bool      `json:"success"`
	OS              string    `json:"os"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// RecentQuery selects recent sessions
type RecentQuery struct {
	Limit     int
	StartDate *time.Time
	Success   *bool
}

// Dashboard combines the headline reports
type Dashboard struct {
	Stats       *Stats       `json:"stats"`
	Trends      TrendSummary `json:"trends"`
	Anomalies   []Anomaly    `json:"anomalies"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// GetStats computes totals, success rate, OS and step/status breakdowns and
// the mean session duration. startDate is an inclusive lower bound; nil
// means all time.
func (s *Service) GetStats(ctx context.Context, startDate *time.Time) (*Stats, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetStats", attribute.String("start_date", startKey(startDate)))
	defer span.End()
	defer s.observe("stats", time.Now())

	key, cached := s.cachedStats(ctx, startDate)
	if cached != nil {
		return cached, nil
	}

	filter := storage.Filter{Since: startDate}
	sessions, _, err := s.sessions.loadSessions(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalSessions:    len(sessions),
		InstallationByOS: make(map[string]int),
		StepsStatus:      make(map[string]map[string]int64),
	}

	durations := make([]float64, 0, len(sessions))
	for _, session := range sessions {
		if session.Success {
			stats.SuccessfulInstalls++
		}
		if session.OSName != "" {
			stats.InstallationByOS[session.OSName]++
		}
		durations = append(durations, session.DurationSeconds)
	}
	stats.SuccessRate = rate(stats.SuccessfulInstalls, stats.TotalSessions)
	stats.AvgInstallTime = mean(durations)

	groups, err := s.source.aggregate(ctx, filter, storage.FieldStep, storage.FieldStatus)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		step, status := labelOrUnknown(g.Keys[0]), labelOrUnknown(g.Keys[1])
		if stats.StepsStatus[step] == nil {
			stats.StepsStatus[step] = make(map[string]int64)
		}
		stats.StepsStatus[step][status] += g.Count
	}

	s.storeStats(ctx, key, stats)
	return stats, nil
}

// cachedStats returns the cache key for this computation and, on a hit,
// the cached report. The key embeds the generation read before computing.
func (s *Service) cachedStats(ctx context.Context, startDate *time.Time) (string, *Stats) {
	if s.cache == nil {
		return "", nil
	}
	logger := loggerFor(ctx, s.logger)

	gen, err := s.cache.Generation(ctx)
	if err != nil {
		logger.WithError(err).Warn("Report cache unavailable")
		return "", nil
	}
	key := fmt.Sprintf("%d:stats:%s", gen, startKey(startDate))

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.WithError(err).Warn("Report cache read failed")
		}
		s.metrics.RecordCacheMiss("stats")
		return key, nil
	}

	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		logger.WithError(err).Warn("Discarding undecodable cached report")
		s.metrics.RecordCacheMiss("stats")
		return key, nil
	}
	s.metrics.RecordCacheHit("stats")
	return key, &stats
}

func (s *Service) storeStats(ctx context.Context, key string, stats *Stats) {
	if s.cache == nil || key == "" {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		loggerFor(ctx, s.logger).WithError(err).Warn("Report cache write failed")
	}
}

// GetRecentSessions returns sessions ordered by start time, most recent
// first, optionally filtered by outcome and truncated to the clamped limit.
func (s *Service) GetRecentSessions(ctx context.Context, q RecentQuery) ([]RecentSession, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetRecentSessions")
	defer span.End()
	defer s.observe("recent", time.Now())

	sessions, _, err := s.sessions.loadSessions(ctx, storage.Filter{Since: q.StartDate})
	if err != nil {
		return nil, err
	}
	return recentSessions(sessions, q.Success, ClampLimit(q.Limit)), nil
}

func recentSessions(sessions []*SessionSummary, success *bool, limit int) []RecentSession {
	sortByStartDesc(sessions)

	out := make([]RecentSession, 0, limit)
	for _, session := range sessions {
		if success != nil && session.Success != *success {
			continue
		}
		out = append(out, RecentSession{
			SessionID:       session.SessionID,
			Timestamp:       session.StartedAt,
			Success:         session.Success,
			OS:              session.OSDescriptor,
			DurationSeconds: session.DurationSeconds,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// GetTrends returns daily, weekly and monthly session buckets
func (s *Service) GetTrends(ctx context.Context, startDate *time.Time) (*Trends, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetTrends")
	defer span.End()
	defer s.observe("trends", time.Now())

	sessions, _, err := s.sessions.loadSessions(ctx, storage.Filter{Since: startDate})
	if err != nil {
		return nil, err
	}
	return buildTrends(sessions, s.now()), nil
}

// GetUserStats counts identities, active and returning users
func (s *Service) GetUserStats(ctx context.Context, startDate *time.Time) (*UserStats, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetUserStats")
	defer span.End()
	defer s.observe("users", time.Now())

	sessions, events, err := s.sessions.loadSessions(ctx, storage.Filter{Since: startDate})
	if err != nil {
		return nil, err
	}
	return buildUserStats(collectIdentities(events), sessions, s.now()), nil
}

// GetVersionDistribution groups identities by their latest script version
func (s *Service) GetVersionDistribution(ctx context.Context, startDate *time.Time) ([]VersionStat, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetVersionDistribution")
	defer span.End()
	defer s.observe("versions", time.Now())

	events, err := s.source.find(ctx, storage.Query{
		Filter: storage.Filter{Since: startDate},
		Sort:   storage.SortAscending,
	})
	if err != nil {
		return nil, err
	}
	return buildVersionDistribution(collectIdentities(events), s.now()), nil
}

// ListUsers returns one row per identity, most recently seen first
func (s *Service) ListUsers(ctx context.Context, startDate *time.Time) ([]UserSummary, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.ListUsers")
	defer span.End()
	defer s.observe("user_list", time.Now())

	sessions, events, err := s.sessions.loadSessions(ctx, storage.Filter{Since: startDate})
	if err != nil {
		return nil, err
	}
	return buildUserList(collectIdentities(events), sessions, s.now()), nil
}

// GetUsersOverview returns identity statistics and the version distribution
// computed from a single read
func (s *Service) GetUsersOverview(ctx context.Context, startDate *time.Time) (*UsersOverview, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetUsersOverview")
	defer span.End()
	defer s.observe("users_overview", time.Now())

	sessions, events, err := s.sessions.loadSessions(ctx, storage.Filter{Since: startDate})
	if err != nil {
		return nil, err
	}
	now := s.now()
	identities := collectIdentities(events)
	return &UsersOverview{
		Users:    buildUserStats(identities, sessions, now),
		Versions: buildVersionDistribution(identities, now),
	}, nil
}

// GetUserDetail describes a named user. A username without events in the
// period is a *NotFoundError.
func (s *Service) GetUserDetail(ctx context.Context, username string, startDate *time.Time) (*UserDetail, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetUserDetail")
	defer span.End()
	defer s.observe("user_detail", time.Now())

	if username == "" {
		return nil, &NotFoundError{Resource: "user", ID: username}
	}

	events, err := s.sessions.loadUserEvents(ctx, username, startDate)
	if err != nil {
		return nil, err
	}
	user := findIdentity(collectIdentities(events), username)
	if user == nil || !user.named {
		return nil, &NotFoundError{Resource: "user", ID: username}
	}

	sessions := make([]*SessionSummary, 0, len(user.sessions))
	for _, session := range groupSessions(events) {
		if _, ok := user.sessions[session.SessionID]; ok {
			sessions = append(sessions, session)
		}
	}
	successful := user.successfulSessions(successIndex(sessions))

	return &UserDetail{
		Username:           username,
		FirstSeen:          user.firstSeen,
		LastSeen:           user.lastSeen,
		TotalSessions:      len(user.sessions),
		SuccessfulSessions: successful,
		SuccessRate:        rate(successful, len(user.sessions)),
		Active:             user.active(s.now()),
		VersionHistory:     buildVersionHistory(eventsOf(events, username)),
		RecentSessions:     recentSessions(sessions, nil, DefaultRecentLimit),
	}, nil
}

// GetAnomalies runs the anomaly detector without notifying anyone
func (s *Service) GetAnomalies(ctx context.Context) ([]Anomaly, error) {
	defer s.observe("anomalies", time.Now())
	return s.alerter.DetectAnomalies(ctx)
}

// GetDashboard computes stats, the trend summary and anomalies concurrently
func (s *Service) GetDashboard(ctx context.Context, startDate *time.Time) (*Dashboard, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.GetDashboard")
	defer span.End()

	dashboard := &Dashboard{GeneratedAt: s.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.GetStats(gctx, startDate)
		if err != nil {
			return err
		}
		dashboard.Stats = stats
		return nil
	})
	g.Go(func() error {
		trends, err := s.GetTrends(gctx, startDate)
		if err != nil {
			return err
		}
		dashboard.Trends = trends.Summary
		return nil
	})
	g.Go(func() error {
		anomalies, err := s.alerter.DetectAnomalies(gctx)
		if err != nil {
			return err
		}
		dashboard.Anomalies = anomalies
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dashboard, nil
}

func (s *Service) observe(report string, start time.Time) {
	s.metrics.ObserveReport(report, time.Since(start))
}

func labelOrUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}
