package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{in: "debug", want: DEBUG},
		{in: "INFO", want: INFO},
		{in: " warn ", want: WARN},
		{in: "warning", want: WARN},
		{in: "error", want: ERROR},
		{in: "fatal", want: FATAL},
		{in: "verbose", want: INFO},
		{in: "", want: INFO},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(INFO, &buf, true)

	log.Infow("Stripe customer created", "userID", "u1", "stripeCustomerID", "cus_abc")
	require.NoError(t, log.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Stripe customer created", entry["msg"])
	assert.Equal(t, "u1", entry["userID"])
	assert.Equal(t, "cus_abc", entry["stripeCustomerID"])
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(WARN, &buf, true)

	log.Debug("hidden %d", 1)
	log.Infow("hidden too")
	assert.Zero(t, buf.Len())

	log.Warn("visible %s", "warning")
	assert.Contains(t, buf.String(), "visible warning")
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(DEBUG, &buf, true).With("component", "webhook")

	log.Debugw("event received")
	assert.Contains(t, buf.String(), `"component":"webhook"`)
	assert.Equal(t, DEBUG, log.Level())
}
