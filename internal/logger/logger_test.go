package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"invalid": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer

	New("info", &buf).Info("evaluation finished", "index", 3, "value", 0.25)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "evaluation finished", entry["msg"])
	assert.Equal(t, float64(3), entry["index"])
	assert.Equal(t, 0.25, entry["value"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	log := NewText("warn", &buf)
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithFormat(t *testing.T) {
	var text, js bytes.Buffer

	NewWithFormat("info", "TEXT", &text).Info("hello")
	NewWithFormat("info", "json", &js).Info("hello")

	assert.Contains(t, text.String(), "msg=hello")
	assert.True(t, json.Valid(js.Bytes()))
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("dropped") })
}
