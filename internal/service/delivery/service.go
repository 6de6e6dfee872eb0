package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// FeedbackRequest is a user's recall rating for a delivered card.
type FeedbackRequest struct {
	UserID     uuid.UUID
	DeliveryID uuid.UUID
	CardID     uuid.UUID
	Quality    domain.Quality
}

// Validate checks the request before any state is touched.
func (r FeedbackRequest) Validate() error {
	switch {
	case r.UserID == uuid.Nil:
		return domain.NewValidationError("user_id", "is required", domain.ErrValidation)
	case r.DeliveryID == uuid.Nil:
		return domain.NewValidationError("delivery_id", "is required", domain.ErrValidation)
	case r.CardID == uuid.Nil:
		return domain.NewValidationError("card_id", "is required", domain.ErrValidation)
	case !r.Quality.Valid():
		return domain.NewValidationError("quality", "must be between 0 and 5", domain.ErrInvalidQuality)
	}
	return nil
}

// FeedbackResult tells the caller when the content comes back and with which card.
type FeedbackResult struct {
	NextReviewAt time.Time
	NextCard     *domain.Card

	// Replayed is true when the delivery had already been answered and the
	// stored result was returned without scheduling anything.
	Replayed bool
}

// OutcomeKind classifies a send attempt reported by the delivery worker.
type OutcomeKind string

// Send outcomes
const (
	OutcomeSent             OutcomeKind = "sent"
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	OutcomePermanentFailure OutcomeKind = "permanent_failure"
)

// SendOutcome is the result of one send attempt.
type SendOutcome struct {
	Kind  OutcomeKind
	Error string
}

// Valid reports whether the outcome kind is known.
func (o SendOutcome) Valid() bool {
	switch o.Kind {
	case OutcomeSent, OutcomeTransientFailure, OutcomePermanentFailure:
		return true
	default:
		return false
	}
}

// OutcomeFromError converts the error of a send attempt into an outcome.
// A nil error is a successful send; errors wrapping ErrPermanentDelivery are
// permanent; anything else is assumed to be transient.
func OutcomeFromError(err error) SendOutcome {
	switch {
	case err == nil:
		return SendOutcome{Kind: OutcomeSent}
	case errors.Is(err, ErrPermanentDelivery):
		return SendOutcome{Kind: OutcomePermanentFailure, Error: err.Error()}
	default:
		return SendOutcome{Kind: OutcomeTransientFailure, Error: err.Error()}
	}
}

// Service orchestrates feedback processing and the delivery state machine.
type Service interface {
	// ProcessFeedback applies a feedback event: it computes the next memory
	// state, rotates to the next card, closes the answered delivery and queues
	// the next one, all in one transaction.
	//
	// Submitting feedback again for a delivery that was already answered returns
	// the stored result and queues nothing.
	//
	// Returns:
	//   - ErrDeliveryNotFound, ErrProgressNotFound, ErrNoCards: missing records
	//   - ErrNotOwned: the delivery belongs to another user
	//   - ErrNoChannel: the user has no eligible channel
	//   - domain.ErrValidation: malformed request or card mismatch
	//   - domain.ErrInvalidTransition: the delivery was never sent or is closed
	ProcessFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error)

	// RecordSendResult applies a send outcome reported by the delivery worker.
	// Transient failures schedule a retry with exponential backoff until the
	// retry budget is spent, after which the delivery fails.
	RecordSendResult(ctx context.Context, deliveryID uuid.UUID, outcome SendOutcome) (*domain.Delivery, error)

	// MarkOpened records that the user opened a sent card. Opening an already
	// opened delivery is a no-op.
	MarkOpened(ctx context.Context, userID, deliveryID uuid.UUID) (*domain.Delivery, error)

	// ListDue returns deliveries the worker should attempt now.
	ListDue(ctx context.Context, limit int) ([]*domain.Delivery, error)
}
