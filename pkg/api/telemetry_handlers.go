package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/contextkeys"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// TelemetryPrefix is the mount point of the telemetry API
const TelemetryPrefix = "/api/telemetry"

// TelemetryHandlers provides the ingestion and reporting endpoints
type TelemetryHandlers struct {
	tracker *analytics.EventTracker
	service *analytics.Service
	metrics *observability.Metrics
	logger  *observability.Logger

	ingestMiddleware func(http.Handler) http.Handler
}

// NewTelemetryHandlers creates a new telemetry handlers instance
func NewTelemetryHandlers(tracker *analytics.EventTracker, service *analytics.Service, metrics *observability.Metrics, logger *observability.Logger) *TelemetryHandlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &TelemetryHandlers{
		tracker: tracker,
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// SetIngestMiddleware wraps the ingestion route only. Call before RegisterRoutes.
func (h *TelemetryHandlers) SetIngestMiddleware(mw func(http.Handler) http.Handler) {
	h.ingestMiddleware = mw
}

// RegisterRoutes registers telemetry API routes
func (h *TelemetryHandlers) RegisterRoutes(r *mux.Router) {
	// Ingestion
	var ingest http.Handler = http.HandlerFunc(h.ingest)
	if h.ingestMiddleware != nil {
		ingest = h.ingestMiddleware(ingest)
	}
	r.Handle(TelemetryPrefix, ingest).Methods("POST")
	r.Handle(TelemetryPrefix+"/", ingest).Methods("POST")

	// Statistics
	r.HandleFunc(TelemetryPrefix+"/stats", h.getStats).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/recent", h.getRecent).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/trends", h.getTrends).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/dashboard", h.getDashboard).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/anomalies", h.getAnomalies).Methods("GET")

	// Sessions
	r.HandleFunc(TelemetryPrefix+"/sessions/{session_id}/events", h.getSessionEvents).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/sessions/{session_id}", h.getSession).Methods("GET")

	// Users and versions; overview must be matched before {username}
	r.HandleFunc(TelemetryPrefix+"/users", h.listUsers).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/users/overview", h.getUsersOverview).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/users/{username}", h.getUser).Methods("GET")
	r.HandleFunc(TelemetryPrefix+"/versions", h.getVersions).Methods("GET")

	// Export
	r.HandleFunc(TelemetryPrefix+"/export/sessions.csv", h.exportSessions).Methods("GET")
}

// requestLogger prefers the request-scoped logger set by LoggingMiddleware
func (h *TelemetryHandlers) requestLogger(r *http.Request) *observability.Logger {
	if _, ok := r.Context().Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(r.Context())
	}
	return h.logger
}

// startDate returns the optional start_date filter. Malformed values are
// ignored so that a bad filter degrades to "all time".
func (h *TelemetryHandlers) startDate(r *http.Request) *time.Time {
	start, err := analytics.ParseStartDate(r.URL.Query().Get("start_date"))
	if err != nil {
		h.requestLogger(r).WithError(err).Debug("Ignoring start_date")
		return nil
	}
	return start
}

// writeError maps analytics errors onto HTTP status codes
func (h *TelemetryHandlers) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	if analytics.IsNotFound(err) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	h.requestLogger(r).WithError(err).Errorf("Failed to %s", action)
	httputil.WriteInternalError(w, fmt.Errorf("failed to %s: %w", action, err))
}

func (h *TelemetryHandlers) writeJSON(w http.ResponseWriter, r *http.Request, data interface{}) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.requestLogger(r).WithError(err).Warn("Failed to encode response")
	}
}

// ingest handles POST /api/telemetry/
func (h *TelemetryHandlers) ingest(w http.ResponseWriter, r *http.Request) {
	payload, err := telemetry.DecodePayload(r.Body)
	if err != nil {
		h.metrics.RecordIngestError("decode")
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	id, err := h.tracker.Track(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, "store telemetry", err)
		return
	}

	if err := httputil.WriteCreated(w, httputil.StatusResponse{Status: "success", ID: id}); err != nil {
		h.requestLogger(r).WithError(err).Warn("Failed to encode response")
	}
}

// getStats handles GET /api/telemetry/stats
func (h *TelemetryHandlers) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context(), h.startDate(r))
	if err != nil {
		h.writeError(w, r, "get stats", err)
		return
	}
	h.writeJSON(w, r, stats)
}

// recentQuery parses limit, start_date and success
func (h *TelemetryHandlers) recentQuery(w http.ResponseWriter, r *http.Request) (analytics.RecentQuery, bool) {
	limit, err := httputil.ParseQueryInt(r, "limit", analytics.DefaultRecentLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return analytics.RecentQuery{}, false
	}
	success, err := httputil.ParseQueryOptionalBool(r, "success")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return analytics.RecentQuery{}, false
	}
	return analytics.RecentQuery{
		Limit:     limit,
		StartDate: h.startDate(r),
		Success:   success,
	}, true
}

// getRecent handles GET /api/telemetry/recent
// Query params:
//   - limit: number of sessions (1-100) - default: 10
//   - start_date: inclusive lower bound
//   - success: only successful (true) or failed (false) sessions
func (h *TelemetryHandlers) getRecent(w http.ResponseWriter, r *http.Request) {
	q, ok := h.recentQuery(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.GetRecentSessions(r.Context(), q)
	if err != nil {
		h.writeError(w, r, "get recent sessions", err)
		return
	}
	h.writeJSON(w, r, sessions)
}

// getTrends handles GET /api/telemetry/trends
func (h *TelemetryHandlers) getTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.service.GetTrends(r.Context(), h.startDate(r))
	if err != nil {
		h.writeError(w, r, "get trends", err)
		return
	}
	h.writeJSON(w, r, trends)
}

// getDashboard handles GET /api/telemetry/dashboard
func (h *TelemetryHandlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.GetDashboard(r.Context(), h.startDate(r))
	if err != nil {
		h.writeError(w, r, "get dashboard", err)
		return
	}
	h.writeJSON(w, r, dashboard)
}

// getAnomalies handles GET /api/telemetry/anomalies
func (h *TelemetryHandlers) getAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies, err := h.service.GetAnomalies(r.Context())
	if err != nil {
		h.writeError(w, r, "detect anomalies", err)
		return
	}
	h.writeJSON(w, r, AnomaliesResponse{Anomalies: anomalies})
}

// getSessionEvents handles GET /api/telemetry/sessions/{session_id}/events
func (h *TelemetryHandlers) getSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session_id")
	if !ok {
		return
	}

	events, err := h.service.Sessions().GetSessionEvents(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, "get session events", err)
		return
	}
	h.writeJSON(w, r, SessionEventsResponse{SessionID: sessionID, Events: events})
}

// getSession handles GET /api/telemetry/sessions/{session_id}
func (h *TelemetryHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session_id")
	if !ok {
		return
	}

	summary, err := h.service.Sessions().GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, "get session", err)
		return
	}
	h.writeJSON(w, r, summary)
}

// listUsers handles GET /api/telemetry/users
func (h *TelemetryHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), h.startDate(r))
	if err != nil {
		h.writeError(w, r, "list users", err)
		return
	}
	h.writeJSON(w, r, UsersResponse{Users: users})
}

// getUsersOverview handles GET /api/telemetry/users/overview
func (h *TelemetryHandlers) getUsersOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.GetUsersOverview(r.Context(), h.startDate(r))
	if err != nil {
		h.writeError(w, r, "get users overview", err)
		return
	}
	h.writeJSON(w, r, overview)
}

// getUser handles GET /api/telemetry/users/{username}
func (h *TelemetryHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	username, ok := httputil.ParsePathStringOrError(w, r, "username")
	if !ok {
		return
	}

	detail, err := h.service.GetUserDetail(r.Context(), username, h.startDate(r))
	if err != nil {
		h.writeError(w, r, "get user", err)
		return
	}
	h.writeJSON(w, r, detail)
}

// getVersions handles GET /api/telemetry/versions
func (h *TelemetryHandlers) getVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.GetVersionDistribution(r.Context(), h.startDate(r))
	if err != nil {
		h.writeError(w, r, "get version distribution", err)
		return
	}
	h.writeJSON(w, r, VersionsResponse{Versions: versions})
}
