package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookTestCommand(t *testing.T) {
	var pings atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Beacon-Event") == "ping" {
			pings.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	t.Setenv("BEACON_CONFIG_FILE", "")
	t.Setenv("BEACON_WEBHOOK_URLS", server.URL)
	t.Setenv("BEACON_WEBHOOK_MAX_ATTEMPTS", "1")

	var out bytes.Buffer
	root := NewRootCommand(&out)
	require.NoError(t, root.Execute([]string{"webhook-test"}))

	assert.Equal(t, int32(1), pings.Load())
	assert.Contains(t, out.String(), "success")
	assert.Contains(t, out.String(), "status=204")
}

func TestWebhookTestCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	t.Setenv("BEACON_CONFIG_FILE", "")
	t.Setenv("BEACON_WEBHOOK_URLS", server.URL)
	t.Setenv("BEACON_WEBHOOK_MAX_ATTEMPTS", "1")

	var out bytes.Buffer
	root := NewRootCommand(&out)
	assert.Error(t, root.Execute([]string{"webhook-test"}))
	assert.Contains(t, out.String(), "failed")
}

func TestWebhookTestCommand_NoEndpoints(t *testing.T) {
	t.Setenv("BEACON_CONFIG_FILE", "")
	t.Setenv("BEACON_WEBHOOK_URLS", "")

	root := NewRootCommand(&bytes.Buffer{})
	err := root.Execute([]string{"webhook-test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook endpoints configured")
}
