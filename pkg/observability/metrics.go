package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Ingestion metrics
	EventsIngestedTotal *prometheus.CounterVec
	IngestErrorsTotal   *prometheus.CounterVec

	// Reporting metrics
	ReportDuration         *prometheus.HistogramVec
	AnomaliesDetectedTotal *prometheus.CounterVec
	WebhookDeliveriesTotal *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		EventsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_events_ingested_total",
				Help: "Total number of telemetry events stored",
			},
			[]string{"step", "status"},
		),
		IngestErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_ingest_errors_total",
				Help: "Total number of rejected or failed ingests",
			},
			[]string{"reason"},
		),

		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_report_duration_seconds",
				Help:    "Time spent computing a report",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		AnomaliesDetectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_anomalies_detected_total",
				Help: "Total number of anomalies raised",
			},
			[]string{"type"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_webhook_deliveries_total",
				Help: "Total number of anomaly webhook deliveries",
			},
			[]string{"status"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_cache_hits_total",
				Help: "Total number of report cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_cache_misses_total",
				Help: "Total number of report cache misses",
			},
			[]string{"cache"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_db_connections_active",
				Help: "Number of in-use database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.EventsIngestedTotal,
		m.IngestErrorsTotal,
		m.ReportDuration,
		m.AnomaliesDetectedTotal,
		m.WebhookDeliveriesTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordEventIngested counts a stored event. Null tags are reported as "unknown".
func (m *Metrics) RecordEventIngested(step, status string) {
	if m == nil {
		return
	}
	m.EventsIngestedTotal.WithLabelValues(labelOrUnknown(step), labelOrUnknown(status)).Inc()
}

// RecordIngestError counts a failed ingest
func (m *Metrics) RecordIngestError(reason string) {
	if m == nil {
		return
	}
	m.IngestErrorsTotal.WithLabelValues(reason).Inc()
}

// ObserveReport records how long a report took
func (m *Metrics) ObserveReport(report string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReportDuration.WithLabelValues(report).Observe(d.Seconds())
}

// RecordAnomaly counts a raised anomaly
func (m *Metrics) RecordAnomaly(anomalyType string) {
	if m == nil {
		return
	}
	m.AnomaliesDetectedTotal.WithLabelValues(anomalyType).Inc()
}

// RecordWebhookDelivery counts a delivery attempt outcome ("success" or "failed")
func (m *Metrics) RecordWebhookDelivery(status string) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordStorageOperation counts a store call and its latency
func (m *Metrics) RecordStorageOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordCacheHit counts a report cache hit
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a report cache miss
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// UpdateDBStats copies connection pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

func labelOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched route template so that session ids and
// usernames do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			path := routeLabel(r)
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(r *mux.Router, registry *prometheus.Registry) {
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
