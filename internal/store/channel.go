package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// ChannelStore provides read access to the messaging channels a user has connected.
// Channels are managed outside this service.
type ChannelStore interface {
	// ListByUser returns every channel of the user, oldest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Channel, error)

	// GetByID retrieves a channel by ID.
	// Returns ErrChannelNotFound if the channel does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)

	// WithTx returns a new ChannelStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ChannelStore
}
