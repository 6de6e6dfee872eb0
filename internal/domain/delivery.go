package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the lifecycle state of a single nudge delivery.
type DeliveryStatus string

// Possible delivery status values
const (
	DeliveryStatusPending          DeliveryStatus = "pending"
	DeliveryStatusSent             DeliveryStatus = "sent"
	DeliveryStatusRetryRequired    DeliveryStatus = "retry_required"
	DeliveryStatusFailed           DeliveryStatus = "failed"
	DeliveryStatusCancelled        DeliveryStatus = "cancelled"
	DeliveryStatusOpened           DeliveryStatus = "opened"
	DeliveryStatusFeedbackReceived DeliveryStatus = "feedback_received"
)

// ActiveDeliveryStatuses lists every non-terminal status.
// At most one delivery per (user, content) may be in one of these.
var ActiveDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusSent,
	DeliveryStatusRetryRequired,
	DeliveryStatusOpened,
}

// allowed maps each status to the statuses it may move to.
var allowed = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending: {
		DeliveryStatusSent,
		DeliveryStatusRetryRequired,
		DeliveryStatusFailed,
		DeliveryStatusCancelled,
	},
	DeliveryStatusRetryRequired: {
		DeliveryStatusSent,
		DeliveryStatusRetryRequired,
		DeliveryStatusFailed,
		DeliveryStatusCancelled,
	},
	DeliveryStatusSent: {
		DeliveryStatusOpened,
		DeliveryStatusFeedbackReceived,
		DeliveryStatusCancelled,
	},
	DeliveryStatusOpened: {
		DeliveryStatusFeedbackReceived,
		DeliveryStatusCancelled,
	},
}

// Valid reports whether s is a known status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusRetryRequired,
		DeliveryStatusFailed, DeliveryStatusCancelled, DeliveryStatusOpened,
		DeliveryStatusFeedbackReceived:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s DeliveryStatus) Terminal() bool {
	return len(allowed[s]) == 0
}

// CanTransitionTo reports whether the state machine permits s -> to.
func (s DeliveryStatus) CanTransitionTo(to DeliveryStatus) bool {
	for _, next := range allowed[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Delivery validation errors
var (
	ErrDeliveryIDEmpty        = errors.New("delivery ID cannot be empty")
	ErrDeliveryUserIDEmpty    = errors.New("delivery user ID cannot be empty")
	ErrDeliveryChannelIDEmpty = errors.New("delivery channel ID cannot be empty")
	ErrDeliveryCardIDEmpty    = errors.New("delivery card ID cannot be empty")
	ErrDeliveryContentIDEmpty = errors.New("delivery content ID cannot be empty")
	ErrDeliveryStatusInvalid  = errors.New("delivery status is invalid")
	ErrDeliveryRetryCount     = errors.New("delivery retry count must be greater than or equal to 0")
)

// Delivery is one attempt to push one card to one channel.
// Deliveries for the same content form a chain through PreviousDeliveryID.
type Delivery struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	ChannelID          uuid.UUID      `json:"channel_id"`
	ContentID          uuid.UUID      `json:"content_id"`
	CardID             uuid.UUID      `json:"card_id"`
	PreviousDeliveryID *uuid.UUID     `json:"previous_delivery_id,omitempty"`
	Status             DeliveryStatus `json:"status"`
	RetryCount         int            `json:"retry_count"`
	LastError          string         `json:"last_error,omitempty"`
	NextRetryAt        *time.Time     `json:"next_retry_at,omitempty"`
	ScheduledAt        time.Time      `json:"scheduled_at"`
	SentAt             *time.Time     `json:"sent_at,omitempty"`
	OpenedAt           *time.Time     `json:"opened_at,omitempty"`

	// Set once feedback has been processed so duplicate submissions can be replayed.
	FeedbackQuality    *Quality   `json:"feedback_quality,omitempty"`
	ResultNextReviewAt *time.Time `json:"result_next_review_at,omitempty"`
	ResultNextCardID   *uuid.UUID `json:"result_next_card_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDelivery creates a pending delivery scheduled at scheduledAt.
func NewDelivery(
	userID, channelID, contentID, cardID uuid.UUID,
	previous *uuid.UUID,
	scheduledAt, now time.Time,
) (*Delivery, error) {
	now = now.UTC()
	d := &Delivery{
		ID:                 uuid.New(),
		UserID:             userID,
		ChannelID:          channelID,
		ContentID:          contentID,
		CardID:             cardID,
		PreviousDeliveryID: previous,
		Status:             DeliveryStatusPending,
		ScheduledAt:        scheduledAt.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks if the Delivery has valid data.
func (d *Delivery) Validate() error {
	switch {
	case d.ID == uuid.Nil:
		return ErrDeliveryIDEmpty
	case d.UserID == uuid.Nil:
		return ErrDeliveryUserIDEmpty
	case d.ChannelID == uuid.Nil:
		return ErrDeliveryChannelIDEmpty
	case d.ContentID == uuid.Nil:
		return ErrDeliveryContentIDEmpty
	case d.CardID == uuid.Nil:
		return ErrDeliveryCardIDEmpty
	case !d.Status.Valid():
		return ErrDeliveryStatusInvalid
	case d.RetryCount < 0:
		return ErrDeliveryRetryCount
	}
	return nil
}

// Clone returns a deep copy of the delivery.
func (d *Delivery) Clone() *Delivery {
	c := *d
	c.PreviousDeliveryID = cloneUUID(d.PreviousDeliveryID)
	c.NextRetryAt = cloneTime(d.NextRetryAt)
	c.SentAt = cloneTime(d.SentAt)
	c.OpenedAt = cloneTime(d.OpenedAt)
	c.ResultNextReviewAt = cloneTime(d.ResultNextReviewAt)
	c.ResultNextCardID = cloneUUID(d.ResultNextCardID)
	if d.FeedbackQuality != nil {
		q := *d.FeedbackQuality
		c.FeedbackQuality = &q
	}
	return &c
}

func (d *Delivery) transition(to DeliveryStatus, now time.Time) error {
	if !d.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = now.UTC()
	return nil
}

// MarkSent records a successful send. Any pending retry is cleared.
func (d *Delivery) MarkSent(now time.Time) error {
	if err := d.transition(DeliveryStatusSent, now); err != nil {
		return err
	}
	t := now.UTC()
	d.SentAt = &t
	d.NextRetryAt = nil
	return nil
}

// MarkRetryRequired records a transient send failure and the time of the next attempt.
func (d *Delivery) MarkRetryRequired(reason string, nextRetryAt, now time.Time) error {
	if err := d.transition(DeliveryStatusRetryRequired, now); err != nil {
		return err
	}
	t := nextRetryAt.UTC()
	d.RetryCount++
	d.LastError = reason
	d.NextRetryAt = &t
	return nil
}

// MarkFailed records a permanent failure or exhausted retries.
func (d *Delivery) MarkFailed(reason string, now time.Time) error {
	if err := d.transition(DeliveryStatusFailed, now); err != nil {
		return err
	}
	d.LastError = reason
	d.NextRetryAt = nil
	return nil
}

// MarkOpened records that the user opened the card link.
func (d *Delivery) MarkOpened(now time.Time) error {
	if err := d.transition(DeliveryStatusOpened, now); err != nil {
		return err
	}
	t := now.UTC()
	d.OpenedAt = &t
	return nil
}

// MarkFeedbackReceived closes the delivery and stores the scheduling result
// so a duplicate submission can be answered without reprocessing.
func (d *Delivery) MarkFeedbackReceived(
	quality Quality,
	nextReviewAt time.Time,
	nextCardID uuid.UUID,
	now time.Time,
) error {
	if err := d.transition(DeliveryStatusFeedbackReceived, now); err != nil {
		return err
	}
	if d.OpenedAt == nil {
		t := now.UTC()
		d.OpenedAt = &t
	}
	q := quality
	r := nextReviewAt.UTC()
	c := nextCardID
	d.FeedbackQuality = &q
	d.ResultNextReviewAt = &r
	d.ResultNextCardID = &c
	return nil
}

// Cancel stops a delivery that has not completed.
func (d *Delivery) Cancel(now time.Time) error {
	if err := d.transition(DeliveryStatusCancelled, now); err != nil {
		return err
	}
	d.NextRetryAt = nil
	return nil
}

// DueAt returns when the delivery worker should next attempt this delivery.
// The second value is false when the delivery is not waiting for a send.
func (d *Delivery) DueAt() (time.Time, bool) {
	switch d.Status {
	case DeliveryStatusPending:
		return d.ScheduledAt, true
	case DeliveryStatusRetryRequired:
		if d.NextRetryAt != nil {
			return *d.NextRetryAt, true
		}
		return d.ScheduledAt, true
	default:
		return time.Time{}, false
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
