package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when a payload is valid JSON but not an object
var ErrNotObject = errors.New("payload must be a JSON object")

// DecodePayload reads a single JSON object. Numbers are kept as json.Number
// so that values stored in Metrics round-trip exactly.
func DecodePayload(r io.Reader) (map[string]interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	payload, ok := raw.(map[string]interface{})
	if !ok {
		return nil, ErrNotObject
	}
	return payload, nil
}
