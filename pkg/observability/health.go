package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

// StoreChecker is satisfied by every event store backend
type StoreChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	store   StoreChecker
	db      *sql.DB
	redis   *redis.Client
	version string
}

// NewHealthChecker creates a new health checker. Any dependency may be nil;
// db is only set for SQL-backed stores and redis only when the report cache
// uses Redis.
func NewHealthChecker(store StoreChecker, db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{
		store:   store,
		db:      db,
		redis:   redis,
		version: "dev",
	}
}

// SetVersion sets the version reported by Check
func (h *HealthChecker) SetVersion(version string) {
	if version != "" {
		h.version = version
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns 200 as long as the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness checks all dependencies. Degraded still answers 200.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a health check of every configured dependency
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	// The event store is required
	if h.store != nil {
		dep := h.checkStore(ctx)
		status.Dependencies["event_store"] = dep
		status.Status = worst(status.Status, dep.Status)
	}

	if h.db != nil {
		dep := h.checkDatabase(ctx)
		status.Dependencies["database"] = dep
		status.Status = worst(status.Status, dep.Status)
	}

	// Redis only backs the report cache, so losing it degrades
	if h.redis != nil {
		dep := h.checkRedis(ctx)
		status.Dependencies["redis"] = dep
		if dep.Status != StatusHealthy {
			status.Status = worst(status.Status, StatusDegraded)
		}
	}

	return status
}

func (h *HealthChecker) checkStore(ctx context.Context) DependencyStatus {
	start := time.Now()
	err := h.store.HealthCheck(ctx)
	status := DependencyStatus{
		Status:    StatusHealthy,
		Latency:   time.Since(start),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}
	return status
}

// checkDatabase pings the SQL pool and reports pool exhaustion as degraded
func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
	}

	err := h.db.PingContext(ctx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "query failed: " + err.Error()
		return status
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}

	return status
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	err := h.redis.Ping(ctx).Err()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Latency:   time.Since(start),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}
	return status
}

func worst(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(r *mux.Router, checker *HealthChecker) {
	r.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	r.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
