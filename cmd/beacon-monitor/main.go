package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/api"
	"github.com/platinummonkey/beacon/pkg/app"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/webhooks"
)

var version = "dev"

var (
	configFile = pflag.String("config", os.Getenv(config.ConfigFileEnv), "YAML config file")
	runOnce    = pflag.Bool("run-once", false, "Run a single anomaly check and exit")
)

func main() {
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Observability, os.Stdout).WithField("service", "beacon-monitor")
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Monitor exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	defer observability.RecoverPanic(logger, "beacon-monitor")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// the monitor only reads events, so the report cache is not opened
	store, db, err := app.OpenStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, err := webhooks.NewNotifier(cfg.Monitor.Webhooks, metrics, logger)
	if err != nil {
		return err
	}
	if len(notifier.Endpoints()) == 0 {
		logger.Warn("No webhook endpoints configured, anomalies will only be logged")
	}

	alerter := analytics.NewAlerter(store, analytics.Options{
		Metrics: metrics,
		Logger:  logger,
		Alerts:  cfg.Anomaly,
	})
	alerter.SetNotifier(notifier)

	monitor, err := app.NewMonitor(alerter, cfg.Monitor.Schedule, cfg.Monitor.Timeout, logger)
	if err != nil {
		return err
	}

	if *runOnce {
		_, err := monitor.RunOnce(context.Background())
		return err
	}

	router := mux.NewRouter()
	checker := observability.NewHealthChecker(store, db, nil)
	checker.SetVersion(version)
	observability.RegisterHealthRoutes(router, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(router, registry)
	}
	webhooks.NewWebhookHandlers(notifier).RegisterRoutes(router)

	healthServer := api.NewHTTPServer(api.HTTPServerConfig{
		Addr:         cfg.Server.HealthAddr(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Monitor.Timeout + 5*time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, router)

	if cfg.Monitor.RunOnStart {
		if _, err := monitor.RunOnce(context.Background()); err != nil {
			logger.WithError(err).Warn("Initial anomaly check failed")
		}
	}
	monitor.Start()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, healthServer)
	shutdown.Register("scheduler", monitor.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}
