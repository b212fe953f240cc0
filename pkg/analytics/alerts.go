package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// AnomalyHighFailureRate is raised when too many recent installs fail
const AnomalyHighFailureRate = "high_failure_rate"

// AlertConfig tunes the anomaly detector
type AlertConfig struct {
	Window               time.Duration `yaml:"window"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"`
	MinInstalls          int64         `yaml:"min_installs"`
}

// DefaultAlertConfig returns the trailing-24h, >30%, >5 installs rule
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		Window:               24 * time.Hour,
		FailureRateThreshold: 0.30,
		MinInstalls:          5,
	}
}

// withDefaults fills an unset config with DefaultAlertConfig. Once any field
// is set, a zero threshold or minimum is honoured and only a non-positive
// window or negative values fall back to the defaults.
func (c AlertConfig) withDefaults() AlertConfig {
	d := DefaultAlertConfig()
	if c == (AlertConfig{}) {
		return d
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.FailureRateThreshold < 0 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.MinInstalls < 0 {
		c.MinInstalls = d.MinInstalls
	}
	return c
}

// Anomaly is a detected deviation in install outcomes
type Anomaly struct {
	Type              string    `json:"type"`
	FailureRate       float64   `json:"failure_rate"`
	TotalInstalls     int64     `json:"total_installs"`
	FailedInstalls    int64     `json:"failed_installs"`
	MostCommonFailure string    `json:"most_common_failure"`
	Timestamp         time.Time `json:"timestamp"`
}

// Notifier delivers anomalies to an external system
type Notifier interface {
	Notify(ctx context.Context, anomaly Anomaly) error
}

// Alerter detects anomalies over a trailing window of install events
type Alerter struct {
	source   source
	config   AlertConfig
	notifier Notifier
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewAlerter creates a new Alerter instance
func NewAlerter(store EventSource, opts Options) *Alerter {
	opts = opts.withDefaults()
	return &Alerter{
		source:  source{store: store, metrics: opts.Metrics},
		config:  opts.Alerts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// SetNotifier sets where CheckAndNotify sends anomalies
func (a *Alerter) SetNotifier(n Notifier) {
	a.notifier = n
}

// Config returns the effective detector configuration
func (a *Alerter) Config() AlertConfig {
	return a.config
}

// DetectAnomalies returns zero or one anomaly. No installs in the window
// means insufficient data, not a zero failure rate.
func (a *Alerter) DetectAnomalies(ctx context.Context) ([]Anomaly, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.DetectAnomalies")
	defer span.End()

	now := a.now().UTC()
	since := now.Add(-a.config.Window)
	// future-dated events are outside the trailing window; stored
	// timestamps have microsecond precision
	until := now.Add(time.Microsecond)

	total, err := a.source.count(ctx, storage.Filter{Step: telemetry.StepInstall, Since: &since, Until: &until})
	if err != nil {
		return nil, err
	}
	anomalies := make([]Anomaly, 0, 1)
	if total == 0 {
		return anomalies, nil
	}

	failedInstalls, err := a.source.find(ctx, storage.Query{
		Filter: storage.Filter{Step: telemetry.StepInstall, Status: telemetry.StatusFailure, Since: &since, Until: &until},
		Sort:   storage.SortAscending,
	})
	if err != nil {
		return nil, err
	}

	failed := int64(len(failedInstalls))
	failureRate := float64(failed) / float64(total)
	if failureRate <= a.config.FailureRateThreshold || total <= a.config.MinInstalls {
		return anomalies, nil
	}

	mostCommon, err := a.mostCommonFailure(ctx, failedInstalls)
	if err != nil {
		return nil, err
	}

	anomalies = append(anomalies, Anomaly{
		Type:              AnomalyHighFailureRate,
		FailureRate:       failureRate,
		TotalInstalls:     total,
		FailedInstalls:    failed,
		MostCommonFailure: mostCommon,
		Timestamp:         now,
	})
	return anomalies, nil
}

// mostCommonFailure counts every failure event of the sessions with a
// failed install, by step. Ties go to the step encountered first, walking
// sessions in order of their first failed install and each session's
// events by timestamp.
func (a *Alerter) mostCommonFailure(ctx context.Context, failedInstalls []*telemetry.Event) (string, error) {
	sessionIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, e := range failedInstalls {
		sid := e.SessionKey()
		if sid == "" || seen[sid] {
			continue
		}
		seen[sid] = true
		sessionIDs = append(sessionIDs, sid)
	}
	if len(sessionIDs) == 0 {
		return telemetry.StepInstall, nil
	}

	failures, err := a.source.find(ctx, storage.Query{
		Filter: storage.Filter{SessionIDs: sessionIDs, Status: telemetry.StatusFailure},
		Sort:   storage.SortAscending,
	})
	if err != nil {
		return "", err
	}

	bySession := make(map[string][]*telemetry.Event, len(sessionIDs))
	for _, e := range failures {
		bySession[e.SessionKey()] = append(bySession[e.SessionKey()], e)
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, sid := range sessionIDs {
		for _, e := range bySession[sid] {
			step := e.StepName()
			if step == "" {
				step = unknownLabel
			}
			if _, ok := counts[step]; !ok {
				order = append(order, step)
			}
			counts[step]++
		}
	}

	var (
		best      string
		bestCount int
	)
	for _, step := range order {
		if counts[step] > bestCount {
			best, bestCount = step, counts[step]
		}
	}
	return best, nil
}

// CheckAndNotify runs detection and hands each anomaly to the notifier.
// Notification failures are returned after every anomaly was attempted.
func (a *Alerter) CheckAndNotify(ctx context.Context) ([]Anomaly, error) {
	anomalies, err := a.DetectAnomalies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to detect anomalies: %w", err)
	}

	logger := loggerFor(ctx, a.logger)
	var errs []error
	for _, anomaly := range anomalies {
		a.metrics.RecordAnomaly(anomaly.Type)
		logger.WithFields(map[string]interface{}{
			"type":                anomaly.Type,
			"failure_rate":        anomaly.FailureRate,
			"total_installs":      anomaly.TotalInstalls,
			"most_common_failure": anomaly.MostCommonFailure,
		}).Warn("Anomaly detected")

		if a.notifier == nil {
			continue
		}
		if err := a.notifier.Notify(ctx, anomaly); err != nil {
			errs = append(errs, fmt.Errorf("failed to notify %s: %w", anomaly.Type, err))
		}
	}

	if len(anomalies) == 0 {
		logger.Debug("No anomalies detected")
	}
	return anomalies, errors.Join(errs...)
}
