package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/api"
	"github.com/platinummonkey/beacon/pkg/app"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
)

var version = "dev"

func main() {
	configFile := pflag.String("config", os.Getenv(config.ConfigFileEnv), "YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Observability, os.Stdout).WithField("service", "beacon")
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		// tracing is optional
		logger.WithError(err).Warn("OpenTelemetry unavailable, continuing without it")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	res, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}
	logger.WithField("storage", cfg.Storage.Type).Info("Event store opened")

	limiter, err := res.Limiter(cfg.Server.RateLimit)
	if err != nil {
		_ = res.Close()
		return err
	}
	if rl, ok := limiter.(*middleware.RateLimiter); ok {
		rl.StartCleanup(ctx)
	}

	opts := res.Options(cfg, metrics, logger)
	tracker := analytics.NewEventTracker(res.Store, opts)
	service := analytics.NewService(res.Store, opts)

	server := api.NewServer(tracker, service, api.ServerOptions{
		Metrics:       metrics,
		Logger:        logger,
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		IngestLimiter: limiter,
	})
	apiServer := api.NewHTTPServer(api.HTTPServerConfig{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, server)

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, res.HealthChecker(version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := api.NewHTTPServer(api.HTTPServerConfig{
		Addr:         cfg.Server.HealthAddr(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, healthRouter)

	if res.DB != nil {
		go reportDBStats(ctx, res, metrics)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.Register("storage", func(context.Context) error { return res.Close() })
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		logger.WithField("addr", srv.Addr).Infof("Starting %s server", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}
	go serve("api", apiServer)
	go serve("health", healthServer)

	var serveErr error
	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case serveErr = <-errCh:
			logger.WithError(serveErr).Error("Server failed")
			stop()
		case <-waitCtx.Done():
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	return serveErr
}

func reportDBStats(ctx context.Context, res *app.Resources, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(res.DB.Stats())
		}
	}
}
