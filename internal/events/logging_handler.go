package events

import (
	"context"
	"log/slog"
)

// LoggingHandler writes every delivery event to a structured log.
// Permanent failures are logged at warn level so they surface in monitoring.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a LoggingHandler.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{logger: logger.With("component", "delivery_event_log")}
}

// HandleEvent implements EventHandler.
func (h *LoggingHandler) HandleEvent(ctx context.Context, event *Event) error {
	var p DeliveryPayload
	if err := event.UnmarshalPayload(&p); err != nil {
		h.logger.Error("failed to decode event payload",
			"error", err,
			"event_id", event.ID,
			"event_type", event.Type)
		return err
	}

	level := slog.LevelInfo
	if event.Type == TypeDeliveryFailed {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.String("delivery_id", p.DeliveryID.String()),
		slog.String("user_id", p.UserID.String()),
		slog.String("content_id", p.ContentID.String()),
		slog.String("status", p.Status),
		slog.Time("scheduled_at", p.ScheduledAt),
		slog.Int("retry_count", p.RetryCount),
	}
	if p.NextRetryAt != nil {
		attrs = append(attrs, slog.Time("next_retry_at", *p.NextRetryAt))
	}
	if p.LastError != "" {
		attrs = append(attrs, slog.String("last_error", p.LastError))
	}

	h.logger.LogAttrs(ctx, level, "delivery event", attrs...)
	return nil
}
