package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sessions/s1", nil)
	req = mux.SetURLVars(req, map[string]string{"session_id": "s1"})

	val, err := ParsePathString(req, "session_id")
	require.NoError(t, err)
	assert.Equal(t, "s1", val)

	_, err = ParsePathString(req, "username")
	assert.Error(t, err)
}

func TestParsePathStringOrError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sessions/", nil)
	w := httptest.NewRecorder()

	_, ok := ParsePathStringOrError(w, req, "session_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		want        int
		expectError bool
	}{
		{"absent uses default", "", 10, false},
		{"valid", "?limit=25", 25, false},
		{"negative passes through", "?limit=-3", -3, false},
		{"invalid", "?limit=abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/recent"+tt.query, nil)
			got, err := ParseQueryInt(req, "limit", 10)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stats?start_date=2024-01-01", nil)

	assert.Equal(t, "2024-01-01", ParseQueryString(req, "start_date", ""))
	assert.Equal(t, "all", ParseQueryString(req, "range", "all"))
}

func TestParseQueryOptionalBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/recent", nil)
	val, err := ParseQueryOptionalBool(req, "success")
	require.NoError(t, err)
	assert.Nil(t, val)

	req = httptest.NewRequest(http.MethodGet, "/recent?success=true", nil)
	val, err = ParseQueryOptionalBool(req, "success")
	require.NoError(t, err)
	require.NotNil(t, val)
	assert.True(t, *val)

	req = httptest.NewRequest(http.MethodGet, "/recent?success=0", nil)
	val, err = ParseQueryOptionalBool(req, "success")
	require.NoError(t, err)
	assert.False(t, *val)

	req = httptest.NewRequest(http.MethodGet, "/recent?success=maybe", nil)
	_, err = ParseQueryOptionalBool(req, "success")
	assert.Error(t, err)
}

func TestParamError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/recent?limit=ten", nil)
	_, err := ParseQueryInt(req, "limit", 10)

	var pe *ParamError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "limit", pe.Param)
	assert.Equal(t, "ten", pe.Value)
	assert.Equal(t, "invalid integer for query param limit: ten", err.Error())

	_, err = ParsePathString(httptest.NewRequest(http.MethodGet, "/users/", nil), "username")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing path parameter: username", err.Error())
}
