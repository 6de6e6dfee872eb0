package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// DeliveryStore defines the interface for delivery record persistence.
type DeliveryStore interface {
	// Create inserts a new delivery.
	// Returns ErrActiveDeliveryExists if the user already has an active delivery
	// for the same content unit.
	Create(ctx context.Context, delivery *domain.Delivery) error

	// GetByID retrieves a delivery by its ID without locking it.
	// Returns ErrDeliveryNotFound if the delivery does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)

	// GetForUpdate retrieves a delivery with a row-level lock using SELECT FOR UPDATE.
	// Returns ErrDeliveryNotFound if the delivery does not exist.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)

	// Update saves the mutable fields of an existing delivery.
	// Returns ErrDeliveryNotFound if the delivery does not exist.
	Update(ctx context.Context, delivery *domain.Delivery) error

	// ListActiveForContents returns the user's non-terminal deliveries for the given
	// content units, locked for update.
	ListActiveForContents(ctx context.Context, userID uuid.UUID, contentIDs []uuid.UUID) ([]*domain.Delivery, error)

	// ListDue returns deliveries awaiting a send attempt: pending rows scheduled at or
	// before now and retry_required rows whose next retry is at or before now,
	// oldest due time first. Returns an empty slice if none are due.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Delivery, error)

	// WithTx returns a new DeliveryStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) DeliveryStore
}
