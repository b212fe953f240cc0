package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// DefaultMaxBodyBytes bounds an ingested payload
const DefaultMaxBodyBytes int64 = 1 << 20

// ServerOptions configures the API server
type ServerOptions struct {
	Metrics      *observability.Metrics
	Logger       *observability.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
	// IngestLimiter throttles POST /api/telemetry per client; nil disables it
	IngestLimiter middleware.Limiter
}

// Server represents our API server
type Server struct {
	router    *mux.Router
	handler   http.Handler
	telemetry *TelemetryHandlers
	logger    *observability.Logger
}

// NewServer creates a new API server
func NewServer(tracker *analytics.EventTracker, service *analytics.Service, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		router:    mux.NewRouter(),
		telemetry: NewTelemetryHandlers(tracker, service, opts.Metrics, opts.Logger),
		logger:    opts.Logger,
	}
	if opts.IngestLimiter != nil {
		s.telemetry.SetIngestMiddleware(middleware.RateLimit(opts.IngestLimiter, opts.Metrics, opts.Logger))
	}

	s.setupRoutes(opts.Metrics)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.CORSMiddleware(opts.CORSOrigins),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "beacon-api")
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(metrics *observability.Metrics) {
	// route templates are only known inside the router
	s.router.Use(observability.HTTPMetricsMiddleware(metrics))

	s.router.HandleFunc("/", s.welcome).Methods("GET")
	s.telemetry.RegisterRoutes(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// welcome handles GET /
func (s *Server) welcome(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, WelcomeResponse{
		Message:       "Welcome to Beacon Telemetry API",
		Documentation: TelemetryPrefix,
	})
}
