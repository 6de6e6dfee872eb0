package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogBuffer is a thread-safe buffer for capturing log output in tests.
type TestLogBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// Write implements io.Writer for TestLogBuffer.
func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the buffer contents as a string.
func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// GetLogEntries parses the buffer contents as JSON log entries, one per line.
func (b *TestLogBuffer) GetLogEntries() ([]map[string]any, error) {
	lines := strings.Split(b.String(), "\n")
	entries := make([]map[string]any, 0, len(lines))

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// NewTestLogger returns a debug-level JSON logger writing to a fresh buffer.
// The slog default is left untouched so parallel tests do not interfere.
func NewTestLogger(t *testing.T) (*TestLogBuffer, *slog.Logger) {
	t.Helper()
	buf := &TestLogBuffer{}
	l := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return buf, l
}
