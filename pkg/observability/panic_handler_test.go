package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic_LogsAndSwallows(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(InfoLevel, buf)

	func() {
		defer RecoverPanic(logger, "anomaly check")
		panic("boom")
	}()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "PANIC recovered", entry["message"])
	assert.Equal(t, "boom", entry["panic"])
	assert.Equal(t, "anomaly check", entry["context"])
	assert.NotEmpty(t, entry["stack"])
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var got interface{}
	func() {
		defer RecoverPanicWithCallback(NewLogger(InfoLevel, &bytes.Buffer{}), "job", func(r interface{}) {
			got = r
		})
		panic(42)
	}()
	assert.Equal(t, 42, got)

	called := false
	func() {
		defer RecoverPanicWithCallback(NewLogger(InfoLevel, &bytes.Buffer{}), "job", func(r interface{}) {
			called = true
		})
	}()
	assert.False(t, called)
}

func TestPanicError(t *testing.T) {
	assert.NoError(t, PanicError(nil))
	assert.EqualError(t, PanicError("bad"), "panic: bad")

	cause := errors.New("nil map")
	err := PanicError(cause)
	assert.ErrorIs(t, err, cause)
}
