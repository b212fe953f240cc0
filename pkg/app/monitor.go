package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Monitor runs anomaly detection on a cron schedule and hands anything it
// finds to the alerter's notifier
type Monitor struct {
	alerter  *analytics.Alerter
	schedule string
	timeout  time.Duration
	logger   *observability.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// NewMonitor validates schedule (standard five-field cron or a descriptor
// such as @hourly) and prepares the scheduler
func NewMonitor(alerter *analytics.Alerter, schedule string, timeout time.Duration, logger *observability.Logger) (*Monitor, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	m := &Monitor{
		alerter:  alerter,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.WithField("component", "monitor"),
		cron:     cron.New(),
	}
	if _, err := m.cron.AddFunc(schedule, m.tick); err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return m, nil
}

// RunOnce performs a single detection pass
func (m *Monitor) RunOnce(ctx context.Context) ([]analytics.Anomaly, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	anomalies, err := m.alerter.CheckAndNotify(ctx)

	m.mu.Lock()
	m.lastRun = start
	m.lastErr = err
	m.mu.Unlock()

	fields := map[string]interface{}{
		"anomalies":   len(anomalies),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		m.logger.WithFields(fields).WithError(err).Error("Anomaly check failed")
		return anomalies, err
	}
	m.logger.WithFields(fields).Info("Anomaly check complete")
	return anomalies, nil
}

// tick is the cron entry point. Overlapping runs are skipped.
func (m *Monitor) tick() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("Previous anomaly check still running, skipping")
		return
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	<-async.SafeGo(context.Background(), 0, m.logger, "anomaly check", func(ctx context.Context) error {
		_, err := m.RunOnce(ctx)
		return err
	})
}

// Start begins scheduled runs in the background
func (m *Monitor) Start() {
	m.logger.WithField("schedule", m.schedule).Info("Starting anomaly monitor")
	m.cron.Start()
}

// Stop halts the scheduler and waits for a running check up to ctx
func (m *Monitor) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRun reports when the most recent check started and how it ended
func (m *Monitor) LastRun() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastErr
}
