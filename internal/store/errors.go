package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrDeliveryNotFound, ErrMemoryStateNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrDeliveryNotFound indicates that the requested delivery does not exist.
	ErrDeliveryNotFound = fmt.Errorf("%w: delivery", ErrNotFound)

	// ErrMemoryStateNotFound indicates that no memory state exists for the user and content.
	ErrMemoryStateNotFound = fmt.Errorf("%w: memory state", ErrNotFound)

	// ErrCardNotFound indicates that the requested card does not exist.
	ErrCardNotFound = fmt.Errorf("%w: card", ErrNotFound)

	// ErrChannelNotFound indicates that the requested channel does not exist.
	ErrChannelNotFound = fmt.Errorf("%w: channel", ErrNotFound)

	// ErrContentNotFound indicates that the requested content unit does not exist.
	ErrContentNotFound = fmt.Errorf("%w: content", ErrNotFound)

	// ErrProductNotFound indicates that the requested product does not exist.
	ErrProductNotFound = fmt.Errorf("%w: product", ErrNotFound)

	// ErrSubscriptionNotFound indicates that the user is not subscribed to the product.
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrActiveDeliveryExists indicates that the user already has a non-terminal
	// delivery for the content unit.
	ErrActiveDeliveryExists = fmt.Errorf("%w: active delivery", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// Entity-specific errors wrap ErrNotFound, so a single check covers them all.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "delivery", "memory_state")
	Operation string // The operation that failed (e.g., "create", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
