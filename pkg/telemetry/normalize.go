package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Payload keys with a fixed place in Event. Everything else lands in Metrics.
const (
	FieldAnonymousID     = "anonymousId"
	FieldSessionID       = "sessionId"
	FieldUsername        = "username"
	FieldStep            = "step"
	FieldStatus          = "status"
	FieldTimestamp       = "timestamp"
	FieldScriptVersion   = "scriptVersion"
	FieldOSName          = "osName"
	FieldOSVersion       = "osVersion"
	FieldCPUArchitecture = "cpuArchitecture"
	FieldMemoryGB        = "memoryGB"
)

var knownFields = map[string]struct{}{
	FieldAnonymousID:     {},
	FieldSessionID:       {},
	FieldUsername:        {},
	FieldStep:            {},
	FieldStatus:          {},
	FieldTimestamp:       {},
	FieldScriptVersion:   {},
	FieldOSName:          {},
	FieldOSVersion:       {},
	FieldCPUArchitecture: {},
	FieldMemoryGB:        {},
}

// IsKnownField reports whether key maps onto a fixed Event field
func IsKnownField(key string) bool {
	_, ok := knownFields[key]
	return ok
}

// Normalize maps an arbitrary payload onto an Event. It never fails:
// malformed fields degrade to nil and a malformed timestamp degrades to now.
func Normalize(payload map[string]interface{}, now time.Time) *Event {
	event := &Event{
		AnonymousID:     stringField(payload, FieldAnonymousID),
		SessionID:       stringField(payload, FieldSessionID),
		Username:        stringField(payload, FieldUsername),
		Step:            stringField(payload, FieldStep),
		Status:          stringField(payload, FieldStatus),
		ScriptVersion:   stringField(payload, FieldScriptVersion),
		OSName:          stringField(payload, FieldOSName),
		OSVersion:       stringField(payload, FieldOSVersion),
		CPUArchitecture: stringField(payload, FieldCPUArchitecture),
		MemoryGB:        floatField(payload, FieldMemoryGB),
		Timestamp:       now.UTC().Truncate(time.Microsecond),
		Metrics:         make(map[string]interface{}),
	}

	if raw, ok := payload[FieldTimestamp].(string); ok {
		if ts, ok := ParseTimestamp(raw); ok {
			event.Timestamp = ts
		}
	}

	for key, value := range payload {
		if IsKnownField(key) {
			continue
		}
		event.Metrics[key] = value
	}

	return event
}

// timestampLayouts are tried in order after the trailing Z has been
// rewritten to an explicit +00:00 offset.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 instant. A trailing "Z" is treated as
// UTC and values without an offset are taken to be UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(raw, "Z") || strings.HasSuffix(raw, "z") {
		raw = raw[:len(raw)-1] + "+00:00"
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC().Truncate(time.Microsecond), true
		}
	}
	return time.Time{}, false
}

// stringField extracts a string-typed known field. Scalars that are not
// strings are rendered to text; structured values degrade to nil.
func stringField(payload map[string]interface{}, key string) *string {
	value, ok := payload[key]
	if !ok || value == nil {
		return nil
	}

	switch v := value.(type) {
	case string:
		return &v
	case json.Number:
		s := v.String()
		return &s
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case int:
		s := strconv.Itoa(v)
		return &s
	case int64:
		s := strconv.FormatInt(v, 10)
		return &s
	case bool:
		s := strconv.FormatBool(v)
		return &s
	default:
		return nil
	}
}

func floatField(payload map[string]interface{}, key string) *float64 {
	value, ok := payload[key]
	if !ok || value == nil {
		return nil
	}

	var (
		f   float64
		err error
	)
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &f
}
