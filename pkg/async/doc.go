// Package async provides safe concurrent execution primitives for background
// tasks: goroutines with panic recovery and bounded fan-out.
//
// SafeGo runs a single task and logs its failure instead of crashing the
// process:
//
//	done := async.SafeGo(ctx, 30*time.Second, logger, "webhook delivery", func(ctx context.Context) error {
//		return notifier.Notify(ctx, anomaly)
//	})
//
// Batch runs a function over a slice with a concurrency limit and collects
// every error:
//
//	errs := async.Batch(ctx, endpoints, 4, 10*time.Second, deliver)
//
// Users: the SQL connection manager's replica health routine and the
// webhook notifier.
package async
