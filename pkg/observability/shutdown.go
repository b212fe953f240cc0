package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds the whole drain sequence
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains HTTP servers and then releases resources
type ShutdownManager struct {
	logger  *Logger
	servers []*http.Server
	funcs   []namedShutdownFunc
	timeout time.Duration
	mu      sync.Mutex
}

// NewShutdownManager creates a new shutdown manager. Nil servers are ignored.
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	sm := &ShutdownManager{logger: logger, timeout: timeout}
	for _, s := range servers {
		if s != nil {
			sm.servers = append(sm.servers, s)
		}
	}
	return sm
}

// Register adds a named resource release step. Steps run in reverse
// registration order after every server has stopped.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdownFunc{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)
	case <-ctx.Done():
		sm.logger.Info("Context done, starting graceful shutdown")
	}

	return sm.Shutdown(context.Background())
}

// Shutdown stops the servers and runs the registered steps within the
// manager's timeout. All failures are collected.
func (sm *ShutdownManager) Shutdown(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, sm.timeout)
	defer cancel()

	var errs []error

	for _, srv := range sm.servers {
		sm.logger.WithField("addr", srv.Addr).Info("Shutting down HTTP server")
		if err := srv.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("server %s: %w", srv.Addr, err))
		}
	}

	sm.mu.Lock()
	funcs := make([]namedShutdownFunc, len(sm.funcs))
	copy(funcs, sm.funcs)
	sm.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		step := funcs[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: shutdown timeout reached", step.name))
			continue
		}
		if err := step.fn(ctx); err != nil {
			sm.logger.WithError(err).WithField("step", step.name).Error("Shutdown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		sm.logger.WithField("step", step.name).Debug("Shutdown step complete")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
