package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/redact"
)

// ErrorResponse defines the standard error response structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes a JSON error response carrying the request trace ID.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithErrorAndLog(w, r, status, message, nil)
}

// RespondWithErrorAndLog writes a JSON error response with the safe message
// and logs the redacted error. 5xx responses are logged at ERROR, 429 at
// WARN and other client errors at DEBUG.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, userMessage string, err error) {
	traceID := GetTraceID(r.Context())

	attrs := []slog.Attr{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	level := slog.LevelDebug
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status == http.StatusTooManyRequests:
		level = slog.LevelWarn
	}
	logger.FromContext(r.Context()).LogAttrs(r.Context(), level, "API error response", attrs...)

	RespondWithJSON(w, r, status, ErrorResponse{Error: userMessage, TraceID: traceID})
}
