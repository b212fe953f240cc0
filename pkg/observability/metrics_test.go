package observability

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.EventsIngestedTotal == nil || metrics.ReportDuration == nil {
		t.Error("domain metrics not initialized")
	}

	// registering twice on the same registry must panic
	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate registration to panic")
		}
	}()
	NewMetrics(registry)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.RecordEventIngested("install", "success")
	m.RecordIngestError("storage")
	m.ObserveReport("stats", time.Second)
	m.RecordAnomaly("high_failure_rate")
	m.RecordWebhookDelivery("success")
	m.RecordStorageOperation("insert", time.Millisecond, nil)
	m.RecordCacheHit("memory")
	m.RecordCacheMiss("memory")
	m.UpdateDBStats(sql.DBStats{})
}

func TestMetrics_Ingestion(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordEventIngested("install", "completed")
	metrics.RecordEventIngested("install", "completed")
	metrics.RecordEventIngested("", "")
	metrics.RecordIngestError("storage")

	expected := `
# HELP beacon_events_ingested_total Total number of telemetry events stored
# TYPE beacon_events_ingested_total counter
beacon_events_ingested_total{status="completed",step="install"} 2
beacon_events_ingested_total{status="unknown",step="unknown"} 1
`
	if err := testutil.CollectAndCompare(metrics.EventsIngestedTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected counter value: %v", err)
	}

	if got := testutil.ToFloat64(metrics.IngestErrorsTotal.WithLabelValues("storage")); got != 1 {
		t.Errorf("Expected 1 ingest error, got %v", got)
	}
}

func TestMetrics_StorageAndCache(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordStorageOperation("find", 5*time.Millisecond, nil)
	metrics.RecordStorageOperation("find", 5*time.Millisecond, errors.New("boom"))
	metrics.RecordCacheHit("redis")
	metrics.RecordCacheMiss("redis")
	metrics.RecordCacheMiss("redis")
	metrics.UpdateDBStats(sql.DBStats{InUse: 3, Idle: 2})

	if got := testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("find", "error")); got != 1 {
		t.Errorf("Expected 1 failed find, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("redis")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsActive); got != 3 {
		t.Errorf("Expected 3 active connections, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsIdle); got != 2 {
		t.Errorf("Expected 2 idle connections, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records HTTP metrics", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()
		HTTPMetricsMiddleware(metrics)(handler).ServeHTTP(rec, req)

		expected := `
# HELP beacon_http_requests_total Total number of HTTP requests
# TYPE beacon_http_requests_total counter
beacon_http_requests_total{method="GET",path="/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
		if count := testutil.CollectAndCount(metrics.HTTPResponseSize); count != 1 {
			t.Errorf("Expected 1 response size metric, got %d", count)
		}
	})

	t.Run("labels by route template", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())

		router := mux.NewRouter()
		router.Use(HTTPMetricsMiddleware(metrics))
		router.HandleFunc("/sessions/{session_id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		for _, id := range []string{"a", "b", "c"} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", "/sessions/"+id, nil))
		}

		got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{session_id}", "404"))
		if got != 3 {
			t.Errorf("Expected 3 requests under the template label, got %v", got)
		}
	})

	t.Run("nil metrics passes through", func(t *testing.T) {
		called := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

		HTTPMetricsMiddleware(nil)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if !called {
			t.Error("Expected handler to be called")
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordAnomaly("high_failure_rate")

	serveMux := mux.NewRouter()
	RegisterMetricsEndpoint(serveMux, registry)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `beacon_anomalies_detected_total{type="high_failure_rate"} 1`) {
		t.Errorf("Expected anomaly counter in output, got:\n%s", body)
	}
}
