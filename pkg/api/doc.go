// Package api provides the HTTP REST API server for Beacon telemetry ingestion
// and reporting.
//
// # Overview
//
// Installers POST one JSON object per step to /api/telemetry/. Every other
// endpoint is a read-only report derived from the stored events on demand.
//
// # Endpoints
//
//	POST /api/telemetry/                            ingest an event (201 {status, id})
//	GET  /api/telemetry/stats?start_date            totals, OS and step/status breakdowns
//	GET  /api/telemetry/recent?limit&start_date&success
//	GET  /api/telemetry/trends?start_date           daily, weekly and monthly buckets
//	GET  /api/telemetry/sessions/{session_id}       session summary
//	GET  /api/telemetry/sessions/{session_id}/events
//	GET  /api/telemetry/users?start_date
//	GET  /api/telemetry/users/overview?start_date
//	GET  /api/telemetry/users/{username}?start_date
//	GET  /api/telemetry/versions?start_date
//	GET  /api/telemetry/anomalies
//	GET  /api/telemetry/dashboard?start_date
//	GET  /api/telemetry/export/sessions.csv?limit&start_date&success
//
// A malformed start_date is ignored. Unknown sessions and users return 404;
// store failures return 500 with {"error": "failed to <action>: <cause>"}.
//
// # Usage
//
//	server := api.NewServer(tracker, service, api.ServerOptions{
//		Metrics:     metrics,
//		Logger:      logger,
//		CORSOrigins: []string{"*"},
//	})
//	httpServer := api.NewHTTPServer(api.HTTPServerConfig{Addr: ":9999"}, server)
//
// Requests pass through request-id, logging, recovery, CORS and body-size
// middleware and are traced with otelhttp. Prometheus HTTP metrics are
// labelled by route template.
package api
