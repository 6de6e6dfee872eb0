package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/phrazzld/nudge-api/internal/config"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
		ok       bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		level, ok := logger.ParseLevel(tt.input)
		assert.Equal(t, tt.expected, level, "input %q", tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
	}
}

// Not parallel: Setup replaces the slog default.
func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: "warn"}, &buf)
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("hidden")
	l.Warn("shown", slog.String("key", "value"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "nudge-api", entry["service"])
	assert.Same(t, l, slog.Default())
}

// Not parallel: Setup replaces the slog default.
func TestSetupWithInvalidLevelWarns(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	_, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: "loud"}, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "invalid log level configured")
}

func TestContextLogger(t *testing.T) {
	t.Parallel()
	_, fallback := logger.NewTestLogger(t)
	_, scoped := logger.NewTestLogger(t)

	ctx := context.Background()
	assert.Same(t, fallback, logger.FromContextOrDefault(ctx, fallback))
	assert.NotNil(t, logger.FromContext(ctx))

	ctx = logger.WithLogger(ctx, scoped)
	assert.Same(t, scoped, logger.FromContextOrDefault(ctx, fallback))
	assert.Same(t, scoped, logger.FromContext(ctx))
}

func TestTestLogBufferEntries(t *testing.T) {
	t.Parallel()
	buf, l := logger.NewTestLogger(t)

	l.Debug("first", slog.Int("n", 1))
	l.Error("second")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0]["msg"])
	assert.Equal(t, float64(1), entries[0]["n"])
	assert.Equal(t, "ERROR", entries[1]["level"])
}
