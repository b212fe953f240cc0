package webhooks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// StatusError is returned when a receiver answers with a non-2xx status
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned non-2xx status: %d", e.Code)
}

// Temporary reports whether resending may succeed
func (e *StatusError) Temporary() bool {
	switch {
	case e.Code >= 500:
		return true
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	d := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = d.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = d.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = d.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = d.BackoffMultiplier
	}

	return &RetryPolicy{
		config: config,
	}
}

// Config returns the effective configuration
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}

// ShouldRetry determines if a delivery should be retried after the given
// number of attempts
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	if attempts >= p.config.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// NextRetryDelay calculates the delay before the next retry
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// delay = initialDelay * (multiplier ^ (attempts - 1))
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))

	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}

	return time.Duration(delay)
}

// Wait blocks for the backoff delay or until ctx is done
func (p *RetryPolicy) Wait(ctx context.Context, attempts int) error {
	timer := time.NewTimer(p.NextRetryDelay(attempts))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
