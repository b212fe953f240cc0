// Package analytics turns stored installer events into reports.
//
// # Overview
//
// EventTracker normalizes and stores incoming payloads. Service answers the
// read side: every report is computed from the event store on demand, with
// sessions rebuilt by grouping events on their session id.
//
// A session is successful iff it contains a deploy/success event. Its
// duration runs from its first to its last event.
//
// # Reports
//
//   - GetStats: totals, success rate, sessions by OS, step/status counts,
//     mean duration
//   - GetRecentSessions: newest sessions first, optionally filtered by outcome
//   - GetTrends: daily, weekly (ISO Monday) and monthly buckets
//   - GetUserStats, ListUsers, GetUsersOverview, GetUserDetail: per-identity
//     activity, where identity is the username or else the anonymous id
//   - GetVersionDistribution: installer versions among active identities
//   - GetAnomalies: the Alerter's current findings
//
// # Usage Example
//
//	opts := analytics.Options{Metrics: metrics, Logger: logger, Cache: reportCache}
//	tracker := analytics.NewEventTracker(store, opts)
//	service := analytics.NewService(store, opts)
//
//	id, err := tracker.Track(ctx, payload)
//	stats, err := service.GetStats(ctx, &since)
//
// # Anomalies
//
// Alerter raises a high_failure_rate anomaly when the share of failed
// installs over the trailing window exceeds the threshold and enough
// installs were seen. CheckAndNotify hands each anomaly to a Notifier.
//
// # Related Packages
//
//   - pkg/storage: event persistence
//   - pkg/cache: optional stats cache
//   - pkg/webhooks: the Notifier used by beacon-monitor
package analytics
