package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
)

func TestServer_Welcome(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp WelcomeResponse
	decode(t, w, &resp)
	assert.Equal(t, "Welcome to Beacon Telemetry API", resp.Message)
	assert.Equal(t, TelemetryPrefix, resp.Documentation)
}

func TestServer_RequestIDAndCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/telemetry/stats", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
	assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RecoversFromPanics(t *testing.T) {
	env := newTestEnv(t)
	env.server.Router().HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	w := env.do(t, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp httputil.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestServer_RecordsMetricsByRouteTemplate(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/telemetry/sessions/abc", "")
	env.do(t, http.MethodGet, "/api/telemetry/sessions/def", "")

	count := testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/telemetry/sessions/{session_id}", "404"))
	assert.Equal(t, 2.0, count)
}

type pingHandlers struct{}

func (pingHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_ = httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	}).Methods("GET")
}

func TestServer_RegisterRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.server.RegisterRoutes(pingHandlers{})

	w := env.do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewHTTPServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := NewHTTPServer(HTTPServerConfig{
		Addr:         ":9999",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}, handler)

	assert.Equal(t, ":9999", srv.Addr)
	assert.Equal(t, handler, srv.Handler)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)
	assert.Equal(t, time.Minute, srv.IdleTimeout)
}

func TestServer_IngestRateLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	opts := analytics.Options{Logger: logger}
	server := NewServer(analytics.NewEventTracker(store, opts), analytics.NewService(store, opts), ServerOptions{
		Logger: logger,
		IngestLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerWindow: 1,
			WindowDuration:    time.Hour,
		}),
	})

	ingest := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/telemetry/", strings.NewReader(`{"step":"install","status":"success"}`))
		req.RemoteAddr = "192.0.2.10:5000"
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, ingest())
	assert.Equal(t, http.StatusTooManyRequests, ingest())

	// reads are not limited
	req := httptest.NewRequest(http.MethodGet, "/api/telemetry/stats", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	count, err := store.Count(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
