package storage

import (
	"time"

	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// SortOrder controls timestamp ordering of Find results
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
)

// Field names an event attribute usable for grouping
type Field string

const (
	FieldSessionID     Field = "sessionId"
	FieldAnonymousID   Field = "anonymousId"
	FieldUsername      Field = "username"
	FieldStep          Field = "step"
	FieldStatus        Field = "status"
	FieldOSName        Field = "osName"
	FieldScriptVersion Field = "scriptVersion"
)

// Filter selects events. Zero-valued fields do not constrain the result.
type Filter struct {
	SessionID   string
	SessionIDs  []string
	AnonymousID string
	Username    string
	Step        string
	Status      string

	// Since is an inclusive lower bound on event timestamp
	Since *time.Time
	// Until is an exclusive upper bound on event timestamp
	Until *time.Time
}

// Query is a filter plus ordering and an optional limit
type Query struct {
	Filter Filter
	Sort   SortOrder
	Limit  int // 0 means no limit
}

// Group is one row of an aggregation
type Group struct {
	Keys  []string
	Count int64
}

// Matches reports whether the event satisfies the filter
func (f Filter) Matches(e *telemetry.Event) bool {
	if f.SessionID != "" && e.SessionKey() != f.SessionID {
		return false
	}
	if len(f.SessionIDs) > 0 && !contains(f.SessionIDs, e.SessionKey()) {
		return false
	}
	if f.AnonymousID != "" && value(e.AnonymousID) != f.AnonymousID {
		return false
	}
	if f.Username != "" && value(e.Username) != f.Username {
		return false
	}
	if f.Step != "" && e.StepName() != f.Step {
		return false
	}
	if f.Status != "" && e.StatusName() != f.Status {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}

// FieldValue returns the event's value for a groupable field, "" when null
func FieldValue(e *telemetry.Event, field Field) string {
	switch field {
	case FieldSessionID:
		return value(e.SessionID)
	case FieldAnonymousID:
		return value(e.AnonymousID)
	case FieldUsername:
		return value(e.Username)
	case FieldStep:
		return value(e.Step)
	case FieldStatus:
		return value(e.Status)
	case FieldOSName:
		return value(e.OSName)
	case FieldScriptVersion:
		return value(e.ScriptVersion)
	default:
		return ""
	}
}

// ValidField reports whether the field can be used for grouping
func ValidField(field Field) bool {
	switch field {
	case FieldSessionID, FieldAnonymousID, FieldUsername, FieldStep,
		FieldStatus, FieldOSName, FieldScriptVersion:
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
