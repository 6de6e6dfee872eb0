package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// MemoryStateStore defines the interface for memory state persistence.
// A memory state is keyed by (user, content) and is never deleted while the
// subscription is active.
type MemoryStateStore interface {
	// CreateIfNotExists inserts state unless a row for the same user and content exists.
	// Existing rows are left untouched. Reports whether a row was inserted.
	CreateIfNotExists(ctx context.Context, state *domain.MemoryState) (bool, error)

	// Get retrieves the memory state for a user and content unit.
	// Returns ErrMemoryStateNotFound if the state does not exist.
	// NOTE: This method does NOT provide any row locking.
	Get(ctx context.Context, userID, contentID uuid.UUID) (*domain.MemoryState, error)

	// GetForUpdate retrieves the memory state with a row-level lock using SELECT FOR UPDATE.
	// This should be used within a transaction when the row is about to be updated.
	// Returns ErrMemoryStateNotFound if the state does not exist.
	GetForUpdate(ctx context.Context, userID, contentID uuid.UUID) (*domain.MemoryState, error)

	// Update saves the scheduling fields of an existing state.
	// Returns ErrMemoryStateNotFound if the state does not exist.
	Update(ctx context.Context, state *domain.MemoryState) error

	// WithTx returns a new MemoryStateStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) MemoryStateStore
}
