// Package webhooks delivers installer anomaly notifications to HTTP endpoints.
//
// # Overview
//
// Endpoints are configured statically. Every detected anomaly is sent to all
// endpoints concurrently, each delivery retried with exponential backoff and
// recorded in an in-memory delivery log.
//
// # Events
//
//	anomaly.detected  failure rate exceeded the configured threshold
//	ping              connectivity test
//
// # Payload Formats
//
// json (default) posts the Event as is. slack and teams post an incoming
// webhook message built from the same event.
//
// # Usage Example
//
//	notifier, err := webhooks.NewNotifier(webhooks.Config{
//		Endpoints: []webhooks.Endpoint{
//			{Name: "oncall", URL: "https://hooks.example.com/beacon", Secret: "s3cret"},
//		},
//	}, metrics, logger)
//	alerter.SetNotifier(notifier)
//
// Verify signature (receiver side):
//
//	sig := r.Header.Get(webhooks.HeaderSignature)
//	if !webhooks.VerifySignature(body, sig, secret) {
//		return errors.New("invalid signature")
//	}
//
// # Retry Policy
//
// Exponential backoff starting at 1s, doubling up to 30s, 3 attempts.
// Client errors other than 408 and 429 are not retried.
package webhooks
