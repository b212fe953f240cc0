package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventAnomalyDetected EventType = "anomaly.detected"
	EventPing            EventType = "ping"
)

// Header names set on every delivery
const (
	HeaderEvent     = "X-Beacon-Event"
	HeaderEventID   = "X-Beacon-Event-ID"
	HeaderDelivery  = "X-Beacon-Delivery"
	HeaderTimestamp = "X-Beacon-Timestamp"
	HeaderSignature = "X-Beacon-Signature"
)

// Format selects the payload shape sent to an endpoint
type Format string

const (
	FormatJSON  Format = "json"
	FormatSlack Format = "slack"
	FormatTeams Format = "teams"
)

// Event represents a webhook event
type Event struct {
	ID        string             `json:"id"`
	Type      EventType          `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Anomaly   *analytics.Anomaly `json:"anomaly,omitempty"`
}

// Endpoint is a statically configured receiver
type Endpoint struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
	Format Format `yaml:"format"`
}

// Config configures anomaly notification delivery
type Config struct {
	Endpoints       []Endpoint    `yaml:"endpoints"`
	Timeout         time.Duration `yaml:"timeout"`
	Concurrency     int           `yaml:"concurrency"`
	MaxDeliveryLogs int           `yaml:"max_delivery_logs"`
	Retry           RetryConfig   `yaml:"retry"`
}

// DefaultConfig returns a configuration without endpoints
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		Concurrency:     4,
		MaxDeliveryLogs: DefaultMaxDeliveryLogs,
		Retry:           DefaultRetryConfig(),
	}
}

// Validate checks endpoint definitions
func (c Config) Validate() error {
	names := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("webhook endpoint %d: URL is required", i)
		}
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook endpoint %d: invalid URL %q", i, ep.URL)
		}
		switch ep.Format {
		case "", FormatJSON, FormatSlack, FormatTeams:
		default:
			return fmt.Errorf("webhook endpoint %d: unknown format %q", i, ep.Format)
		}
		name := endpointName(ep)
		if names[name] {
			return fmt.Errorf("webhook endpoint %d: duplicate name %q", i, name)
		}
		names[name] = true
	}
	return nil
}

func endpointName(ep Endpoint) string {
	if ep.Name != "" {
		return ep.Name
	}
	if u, err := url.Parse(ep.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return ep.URL
}

// Notifier delivers anomaly events to every configured endpoint.
// It satisfies analytics.Notifier.
type Notifier struct {
	config     Config
	endpoints  []Endpoint
	client     *http.Client
	retry      *RetryPolicy
	deliveries *DeliveryLogStore
	metrics    *observability.Metrics
	logger     *observability.Logger
	now        func() time.Time
}

var _ analytics.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier from validated configuration
func NewNotifier(config Config, metrics *observability.Metrics, logger *observability.Logger) (*Notifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	d := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = d.Concurrency
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	endpoints := make([]Endpoint, len(config.Endpoints))
	for i, ep := range config.Endpoints {
		ep.Name = endpointName(ep)
		if ep.Format == "" {
			ep.Format = FormatJSON
		}
		endpoints[i] = ep
	}

	return &Notifier{
		config:     config,
		endpoints:  endpoints,
		client:     &http.Client{Timeout: config.Timeout},
		retry:      NewRetryPolicy(config.Retry),
		deliveries: NewDeliveryLogStore(config.MaxDeliveryLogs),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// SetHTTPClient replaces the client used for deliveries
func (n *Notifier) SetHTTPClient(client *http.Client) {
	n.client = client
}

// Endpoints returns the configured endpoints with defaults applied
func (n *Notifier) Endpoints() []Endpoint {
	return append([]Endpoint(nil), n.endpoints...)
}

// Deliveries returns the delivery history
func (n *Notifier) Deliveries() *DeliveryLogStore {
	return n.deliveries
}

// Notify sends an anomaly.detected event
func (n *Notifier) Notify(ctx context.Context, anomaly analytics.Anomaly) error {
	return n.Dispatch(ctx, n.newEvent(EventAnomalyDetected, &anomaly))
}

// Ping sends a test event to every endpoint
func (n *Notifier) Ping(ctx context.Context) error {
	return n.Dispatch(ctx, n.newEvent(EventPing, nil))
}

func (n *Notifier) newEvent(eventType EventType, anomaly *analytics.Anomaly) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: n.now().UTC(),
		Anomaly:   anomaly,
	}
}

// Dispatch delivers event to all endpoints concurrently and returns the
// joined delivery failures
func (n *Notifier) Dispatch(ctx context.Context, event *Event) error {
	if len(n.endpoints) == 0 {
		n.logger.WithField("event_type", event.Type).Debug("No webhook endpoints configured")
		return nil
	}

	errs := async.Batch(ctx, n.endpoints, n.config.Concurrency, 0, func(ctx context.Context, ep Endpoint) error {
		return n.deliver(ctx, ep, event)
	})
	return errors.Join(errs...)
}

// deliver sends one event to one endpoint, retrying with backoff
func (n *Notifier) deliver(ctx context.Context, ep Endpoint, event *Event) error {
	payload, err := encodePayload(ep.Format, event)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", ep.Name, err)
	}

	log := &DeliveryLog{
		ID:        uuid.New().String(),
		Endpoint:  ep.Name,
		EventID:   event.ID,
		EventType: event.Type,
		URL:       ep.URL,
		CreatedAt: n.now(),
	}
	start := time.Now()

	for {
		log.Attempts++
		log.StatusCode, err = n.send(ctx, ep, event, log.ID, payload)
		if !n.retry.ShouldRetry(log.Attempts, err) {
			break
		}
		n.logger.WithError(err).WithFields(map[string]interface{}{
			"endpoint": ep.Name,
			"attempt":  log.Attempts,
		}).Warn("Webhook delivery failed, retrying")
		if waitErr := n.retry.Wait(ctx, log.Attempts); waitErr != nil {
			err = errors.Join(err, waitErr)
			break
		}
	}

	log.Duration = time.Since(start)
	log.CompletedAt = n.now()
	if err != nil {
		log.Status = DeliveryStatusFailed
		log.ErrorMessage = err.Error()
	} else {
		log.Status = DeliveryStatusSuccess
	}
	n.deliveries.Add(log)
	n.metrics.RecordWebhookDelivery(string(log.Status))

	entry := n.logger.WithFields(map[string]interface{}{
		"endpoint":    ep.Name,
		"event_id":    event.ID,
		"event_type":  event.Type,
		"delivery_id": log.ID,
		"attempts":    log.Attempts,
	})
	if err != nil {
		entry.WithError(err).Error("Webhook delivery failed")
		return fmt.Errorf("webhook %s: %w", ep.Name, err)
	}
	entry.Info("Webhook delivered")
	return nil
}

// send performs a single POST and returns the response status code
func (n *Notifier) send(ctx context.Context, ep Endpoint, event *Event, deliveryID string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(event.Type))
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(event.Timestamp.Unix(), 10))
	if ep.Secret != "" {
		req.Header.Set(HeaderSignature, generateSignature(payload, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// encodePayload renders the event in the endpoint's format
func encodePayload(format Format, event *Event) ([]byte, error) {
	var body interface{} = event
	switch format {
	case FormatSlack:
		body = FormatSlackMessage(event)
	case FormatTeams:
		body = FormatTeamsMessage(event)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

// VerifySignature verifies the webhook signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
