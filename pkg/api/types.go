package api

import (
	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// WelcomeResponse is served at the root path
type WelcomeResponse struct {
	Message       string `json:"message"`
	Documentation string `json:"documentation"`
}

// SessionEventsResponse wraps the ordered events of one session
type SessionEventsResponse struct {
	SessionID string             `json:"session_id"`
	Events    []*telemetry.Event `json:"events"`
}

// AnomaliesResponse wraps detector output
type AnomaliesResponse struct {
	Anomalies []analytics.Anomaly `json:"anomalies"`
}

// UsersResponse wraps the per-identity user list
type UsersResponse struct {
	Users []analytics.UserSummary `json:"users"`
}

// VersionsResponse wraps the version distribution
type VersionsResponse struct {
	Versions []analytics.VersionStat `json:"versions"`
}
