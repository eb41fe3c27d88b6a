package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{
		JSON:    true,
		Service: "tas-agent",
		Version: "v1.2.3",
		Output:  &buf,
	})

	log.Debug("hidden")
	log.Info("visible", "step", "nonce")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "tas-agent", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "nonce", entry["step"])
}

func TestSetupLoggerDebug(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{Debug: true, Output: &buf})

	log.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
