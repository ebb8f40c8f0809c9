package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "warn", Format: config.FormatJSON}, &buf)

	logger.Info("engine: commit", slog.String("unit", "ch1"))
	assert.Zero(t, buf.Len(), "info is below warn")

	logger.Warn("continuity: spatial jump", slog.String("entity", "Mara"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "continuity: spatial jump", line["msg"])
	assert.Equal(t, "Mara", line["entity"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "debug", Format: config.FormatConsole}, &buf)

	logger.Debug("watcher: started", slog.String("dir", "inbox"))
	assert.Contains(t, buf.String(), "watcher: started")
	assert.Contains(t, buf.String(), "inbox")
}
