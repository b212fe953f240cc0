package webhooks

import (
	"fmt"
	"time"
)

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack attachment
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// TeamsMessage represents a Microsoft Teams webhook message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary,omitempty"`
	Title      string         `json:"title,omitempty"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

// TeamsSection represents a section in a Teams message
type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Text          string      `json:"text,omitempty"`
}

// TeamsFact represents a fact in a Teams section
type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fact struct {
	name  string
	value string
	short bool
}

// eventFacts lists the human readable details of an event
func eventFacts(event *Event) []fact {
	facts := []fact{
		{name: "Event ID", value: event.ID, short: true},
		{name: "Timestamp", value: event.Timestamp.Format(time.RFC3339), short: true},
	}
	if a := event.Anomaly; a != nil {
		facts = append(facts,
			fact{name: "Failure Rate", value: fmt.Sprintf("%.1f%%", a.FailureRate*100), short: true},
			fact{name: "Failed Installs", value: fmt.Sprintf("%d of %d", a.FailedInstalls, a.TotalInstalls), short: true},
			fact{name: "Most Common Failure", value: a.MostCommonFailure},
		)
	}
	return facts
}

// FormatSlackMessage formats an event as a Slack message
func FormatSlackMessage(event *Event) SlackMessage {
	facts := eventFacts(event)
	fields := make([]SlackField, 0, len(facts))
	for _, f := range facts {
		fields = append(fields, SlackField{Title: f.name, Value: f.value, Short: f.short})
	}

	return SlackMessage{
		Text: getEventTitle(event.Type),
		Attachments: []SlackAttachment{
			{
				Color:  "#" + getEventColor(event.Type),
				Title:  getEventTitle(event.Type),
				Text:   getEventSummary(event),
				Fields: fields,
			},
		},
	}
}

// FormatTeamsMessage formats an event as a Microsoft Teams message
func FormatTeamsMessage(event *Event) TeamsMessage {
	facts := eventFacts(event)
	teamsFacts := make([]TeamsFact, 0, len(facts))
	for _, f := range facts {
		teamsFacts = append(teamsFacts, TeamsFact{Name: f.name, Value: f.value})
	}

	return TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    getEventTitle(event.Type),
		Title:      getEventTitle(event.Type),
		ThemeColor: getEventColor(event.Type),
		Sections: []TeamsSection{
			{
				ActivityTitle: getEventSummary(event),
				Facts:         teamsFacts,
			},
		},
	}
}

func getEventColor(eventType EventType) string {
	switch eventType {
	case EventAnomalyDetected:
		return "d9534f"
	default:
		return "5bc0de"
	}
}

func getEventTitle(eventType EventType) string {
	switch eventType {
	case EventAnomalyDetected:
		return "Installer failure rate anomaly"
	case EventPing:
		return "Beacon webhook test"
	default:
		return string(eventType)
	}
}

func getEventSummary(event *Event) string {
	if a := event.Anomaly; a != nil {
		return fmt.Sprintf("%.1f%% of %d installs failed in the detection window", a.FailureRate*100, a.TotalInstalls)
	}
	return "Webhook endpoint is reachable"
}
