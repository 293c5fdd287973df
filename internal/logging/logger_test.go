package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Production_JSONHandler(t *testing.T) {
	logger := NewLogger("production", "info")
	require.NotNil(t, logger)

	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok, "production logger should use JSONHandler, got %T", logger.Handler())
}

func TestNewLogger_Development_TextHandler(t *testing.T) {
	logger := NewLogger("development", "info")

	_, ok := logger.Handler().(*slog.TextHandler)
	assert.True(t, ok, "development logger should use TextHandler, got %T", logger.Handler())
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "warn")

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept", "flow_id", "abc")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["flow_id"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}
