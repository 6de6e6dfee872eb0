package delivery

import (
	"errors"
	"fmt"

	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/store"
)

// Common error types for the delivery Service
var (
	// ErrDeliveryNotFound indicates that the delivery does not exist.
	ErrDeliveryNotFound = fmt.Errorf("%w: delivery", store.ErrNotFound)

	// ErrProgressNotFound indicates that the user has no memory state for the
	// delivery's content, i.e. the subscription was never initialized.
	ErrProgressNotFound = fmt.Errorf("%w: memory state", store.ErrNotFound)

	// ErrNoCards indicates that the content unit has no active, validated cards.
	ErrNoCards = fmt.Errorf("%w: no deliverable cards", store.ErrNotFound)

	// ErrNoChannel indicates that the user has no active, push-enabled channel.
	ErrNoChannel = errors.New("no eligible delivery channel")

	// ErrNotOwned indicates that the delivery belongs to another user.
	ErrNotOwned = fmt.Errorf("%w: delivery not owned by user", domain.ErrUnauthorized)

	// ErrCardMismatch indicates that the feedback names a card other than the one delivered.
	ErrCardMismatch = domain.NewValidationError("card_id", "does not match the delivered card", domain.ErrValidation)

	// ErrConcurrencyConflict indicates that another submission changed the delivery
	// first. The service resolves it by replaying the winner's result when possible.
	ErrConcurrencyConflict = errors.New("concurrent feedback submission")

	// ErrInvalidOutcome indicates an unknown send outcome.
	ErrInvalidOutcome = domain.NewValidationError("outcome", "is not a known send outcome", domain.ErrValidation)

	// ErrTransientDelivery marks a send failure that may succeed when retried.
	ErrTransientDelivery = errors.New("transient delivery failure")

	// ErrPermanentDelivery marks a send failure that will not succeed when retried.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
)

// ServiceError wraps errors from the delivery service with additional context.
// This allows consumers to differentiate between different types of service errors
// using errors.As instead of string matching.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "process_feedback")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError returns a new ServiceError for op.
func NewServiceError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Operation: op,
		Message:   message,
		Err:       err,
	}
}

// isDomainError reports whether err is one the service returns unwrapped.
func isDomainError(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, ErrNoChannel) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidTransition)
}
