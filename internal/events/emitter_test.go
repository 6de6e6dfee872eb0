package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventEmitter(t *testing.T) {
	// Create a minimal logger that discards output
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		event, err := NewEvent(TypeDeliveryScheduled, DeliveryPayload{})
		require.NoError(t, err)

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event, err := NewEvent(TypeDeliveryScheduled, DeliveryPayload{})
		require.NoError(t, err)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		assert.Equal(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		event, err := NewEvent(TypeDeliveryFailed, DeliveryPayload{})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		assert.EqualError(t, err, "handler error")

		// Later handlers still run
		assert.Equal(t, 1, successHandler.HandledCount)
		assert.Equal(t, 1, failingHandler.HandledCount)
	})
}

func TestLoggingHandler(t *testing.T) {
	t.Parallel()

	buf, l := logger.NewTestLogger(t)
	h := NewLoggingHandler(l)

	next := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event, err := NewEvent(TypeDeliveryFailed, DeliveryPayload{
		DeliveryID:  uuid.New(),
		Status:      "failed",
		RetryCount:  5,
		NextRetryAt: &next,
		LastError:   "retries exhausted",
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleEvent(context.Background(), event))

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, TypeDeliveryFailed, entries[0]["event_type"])
	assert.Equal(t, "retries exhausted", entries[0]["last_error"])
}

func TestLoggingHandler_BadPayload(t *testing.T) {
	t.Parallel()

	_, l := logger.NewTestLogger(t)
	h := NewLoggingHandler(l)

	err := h.HandleEvent(context.Background(), &Event{Type: TypeDeliveryScheduled, Payload: []byte("{")})
	assert.Error(t, err)
}
