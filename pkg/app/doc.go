// Package app opens the backends named by a config.Config: the event store,
// the report cache and the Redis client shared with the rate limiter.
//
//	res, err := app.Open(cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer res.Close()
//
//	tracker := analytics.NewEventTracker(res.Store, res.Options(cfg, metrics, logger))
package app
