package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("warn", &buf)

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	out := buf.String()
	assert.NotContains(t, out, "should be dropped")
	assert.Contains(t, out, "should be kept")
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("not-a-level", &buf)

	logger.Debug("debug line")
	logger.Info("info line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.Contains(t, out, "info line")
}

func TestComponentTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).Component("engine")

	logger.Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "hello", entry["msg"])
}
