// Package telemetry defines the installer telemetry event and the rules for
// turning an arbitrary JSON payload into one.
//
// # Normalization
//
// A fixed set of keys (anonymousId, sessionId, username, step, status,
// scriptVersion, osName, osVersion, cpuArchitecture, memoryGB, timestamp)
// is lifted onto Event fields. Every other key is copied verbatim into
// Event.Metrics. Normalization never rejects a payload:
//
//	payload, err := telemetry.DecodePayload(r.Body)
//	event := telemetry.Normalize(payload, time.Now())
//
// Timestamps are ISO-8601 strings; a trailing "Z" means UTC and values
// without an offset are taken as UTC. Anything unparseable becomes the
// ingest instant.
package telemetry
