package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestWithComponent(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info"}))

	var buf bytes.Buffer
	SetOutput(&buf)

	l := WithComponent("provider")
	l.Info().Int64("record_id", 7).Msg("dispatched")
	l.Debug().Msg("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "provider", entry["component"])
	assert.Equal(t, "dispatched", entry["message"])
	assert.EqualValues(t, 7, entry["record_id"])
}
