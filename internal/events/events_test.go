package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Parallel()

	payload := DeliveryPayload{
		DeliveryID:  uuid.New(),
		UserID:      uuid.New(),
		ContentID:   uuid.New(),
		CardID:      uuid.New(),
		ChannelID:   uuid.New(),
		Status:      "pending",
		ScheduledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	event, err := NewEvent(TypeDeliveryScheduled, payload)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeDeliveryScheduled, event.Type)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	var decoded DeliveryPayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, payload.DeliveryID, decoded.DeliveryID)
	assert.True(t, payload.ScheduledAt.Equal(decoded.ScheduledAt))
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := NewEvent("bad", make(chan int))
	assert.Error(t, err)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *Event
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *Event) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestEventHandlerFunc(t *testing.T) {
	t.Parallel()

	var got *Event
	h := EventHandlerFunc(func(_ context.Context, e *Event) error {
		got = e
		return errors.New("boom")
	})

	event, err := NewEvent(TypeDeliveryFailed, DeliveryPayload{})
	require.NoError(t, err)

	assert.EqualError(t, h.HandleEvent(context.Background(), event), "boom")
	assert.Same(t, event, got)
}

func TestNopEmitter(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NopEmitter{}.EmitEvent(context.Background(), &Event{}))
}
