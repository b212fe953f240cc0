package httputil

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// ParamError reports a missing or malformed request parameter
type ParamError struct {
	Param string
	Value string
	// Kind is the expected type; empty for a missing path segment
	Kind string
}

func (e *ParamError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("missing path parameter: %s", e.Param)
	}
	return fmt.Sprintf("invalid %s for query param %s: %s", e.Kind, e.Param, e.Value)
}

// ParsePathString returns the mux variable named key
func ParsePathString(r *http.Request, key string) (string, error) {
	if v := mux.Vars(r)[key]; v != "" {
		return v, nil
	}
	return "", &ParamError{Param: key}
}

// ParsePathStringOrError is ParsePathString that answers 400 itself
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := ParsePathString(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return v, true
}

// ParseQueryString returns the query value or defaultVal when absent
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultVal
}

// ParseQueryInt parses an integer query value. Range checks are the
// caller's job.
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Param: key, Value: raw, Kind: "integer"}
	}
	return n, nil
}

// ParseQueryOptionalBool distinguishes an absent flag (nil) from false
func ParseQueryOptionalBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &ParamError{Param: key, Value: raw, Kind: "boolean"}
	}
	return &b, nil
}
