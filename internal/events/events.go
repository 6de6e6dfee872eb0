package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the delivery services.
const (
	// TypeDeliveryScheduled is emitted when a new pending delivery is queued.
	TypeDeliveryScheduled = "delivery.scheduled"

	// TypeDeliveryRetryScheduled is emitted when a transient send failure
	// moves a delivery to retry_required.
	TypeDeliveryRetryScheduled = "delivery.retry_scheduled"

	// TypeDeliveryFailed is emitted when a delivery fails permanently.
	TypeDeliveryFailed = "delivery.failed"

	// TypeDeliveryCancelled is emitted for each delivery cancelled by an unsubscribe.
	TypeDeliveryCancelled = "delivery.cancelled"
)

// Event is a notification about something that already happened.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryPayload describes the delivery an event is about.
type DeliveryPayload struct {
	DeliveryID  uuid.UUID  `json:"delivery_id"`
	UserID      uuid.UUID  `json:"user_id"`
	ContentID   uuid.UUID  `json:"content_id"`
	CardID      uuid.UUID  `json:"card_id"`
	ChannelID   uuid.UUID  `json:"channel_id"`
	Status      string     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *Event) error { return nil }
