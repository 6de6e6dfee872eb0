package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/nudge-api/internal/config"
)

type contextKey struct{}

// ParseLevel maps a configured level name to a slog level (case-insensitive).
// The second value is false for unknown names, in which case info is returned.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup initializes the application's logging system. It creates a structured
// JSON logger on stdout at the configured level and installs it as the slog default.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	return SetupWithWriter(cfg, os.Stdout)
}

// SetupWithWriter is Setup with an explicit output.
func SetupWithWriter(cfg config.ServerConfig, out io.Writer) (*slog.Logger, error) {
	level, ok := ParseLevel(cfg.LogLevel)

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(slog.String("service", "nudge-api"))

	if !ok {
		logger.Warn("invalid log level configured, using default level",
			slog.String("configured_level", cfg.LogLevel),
			slog.String("default_level", "info"))
	}

	slog.SetDefault(logger)
	return logger, nil
}

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the slog default.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOrDefault(ctx, slog.Default())
}

// FromContextOrDefault returns the logger stored in ctx, or fallback when
// the context carries none.
func FromContextOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
