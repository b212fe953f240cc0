// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Create a logger (JSON by default, backed by logrus):
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("session_id", id).Info("Event stored")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("Malformed start_date ignored")
//
// FromContext adds the request id and, when a span is recording, trace_id
// and span_id.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordEventIngested("install", "success")
//	metrics.ObserveReport("stats", time.Since(start))
//
// HTTPMetricsMiddleware labels requests by mux route template so that
// session ids and usernames never become label values.
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "analytics.GetStats")
//	defer span.End()
//
// # Health and Shutdown
//
// HealthChecker reports the event store, the SQL pool and Redis. Redis
// failures degrade readiness without failing it.
//
//	checker := observability.NewHealthChecker(store, db, redisClient)
//	observability.RegisterHealthRoutes(healthRouter, checker)
//
// ShutdownManager stops HTTP servers first and then runs registered steps
// in reverse order:
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second, apiServer, healthServer)
//	sm.Register("store", func(ctx context.Context) error { return store.Close() })
//	sm.WaitForShutdown(ctx)
package observability
