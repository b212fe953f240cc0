package telemetry

import (
	"strings"
	"time"
)

// Well-known values for step and status tags
const (
	StepInstall = "install"
	StepDeploy  = "deploy"

	StatusCompleted = "completed"
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusPartial   = "partial"
	StatusWarning   = "warning"
)

// Event is a single telemetry fact reported by an installer.
// Optional fields are nil when the payload did not carry them.
type Event struct {
	ID              string                 `json:"id"`
	AnonymousID     *string                `json:"anonymousId"`
	SessionID       *string                `json:"sessionId"`
	Username        *string                `json:"username"`
	Step            *string                `json:"step"`
	Status          *string                `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`
	ScriptVersion   *string                `json:"scriptVersion"`
	OSName          *string                `json:"osName"`
	OSVersion       *string                `json:"osVersion"`
	CPUArchitecture *string                `json:"cpuArchitecture"`
	MemoryGB        *float64               `json:"memoryGB"`
	Metrics         map[string]interface{} `json:"metrics"`
}

// SessionKey returns the session id or "" when the event has none
func (e *Event) SessionKey() string {
	return deref(e.SessionID)
}

// StepName returns the step tag or ""
func (e *Event) StepName() string {
	return deref(e.Step)
}

// StatusName returns the status tag or ""
func (e *Event) StatusName() string {
	return deref(e.Status)
}

// Is reports whether the event carries the given step and status
func (e *Event) Is(step, status string) bool {
	return e.StepName() == step && e.StatusName() == status
}

// IsDeploySuccess reports whether this event marks a successful deployment.
// A session is successful iff it contains at least one such event.
func (e *Event) IsDeploySuccess() bool {
	return e.Is(StepDeploy, StatusSuccess)
}

// HasOS reports whether the event carries a non-empty OS name
func (e *Event) HasOS() bool {
	return deref(e.OSName) != ""
}

// OSDescriptor renders "{osName} {osVersion}" trimmed
func (e *Event) OSDescriptor() string {
	return strings.TrimSpace(deref(e.OSName) + " " + deref(e.OSVersion))
}

// Identity resolves the user behind the event: username when present,
// otherwise the anonymous id. Returns "" when neither is set.
func (e *Event) Identity() string {
	if name := deref(e.Username); name != "" {
		return name
	}
	return deref(e.AnonymousID)
}

// IsNamed reports whether the identity was resolved through a username
func (e *Event) IsNamed() bool {
	return deref(e.Username) != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
