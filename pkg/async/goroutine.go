package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// SafeGo executes fn in a goroutine with panic recovery and error logging.
// A positive timeout bounds the task's context; zero leaves only parentCtx.
// The returned channel is closed when fn has returned.
//
// Example:
//
//	SafeGo(ctx, 30*time.Second, logger, "anomaly notification", func(ctx context.Context) error {
//	    return notifier.Notify(ctx, anomaly)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, logger *observability.Logger, taskName string, fn func(context.Context) error) <-chan struct{} {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctx, cancel := parentCtx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		}
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				}).Error("Recovered from panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()

	return done
}

// Batch runs fn over items with at most workers concurrent calls and
// returns every error encountered. A panicking call is reported as an error.
//
// Example:
//
//	errs := Batch(ctx, endpoints, 4, 10*time.Second, func(ctx context.Context, url string) error {
//	    return deliver(ctx, url, payload)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			taskCtx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				taskCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()

			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("panic: %v", r))
				}
			}()

			if err := fn(taskCtx, item); err != nil {
				record(err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}
