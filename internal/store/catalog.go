package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// CatalogStore provides read access to products, content units and cards.
type CatalogStore interface {
	// GetProduct retrieves a product by ID.
	// Returns ErrProductNotFound if the product does not exist.
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// ListActiveContents returns the active content units of a product in display order.
	ListActiveContents(ctx context.Context, productID uuid.UUID) ([]*domain.Content, error)

	// ListContentIDs returns the IDs of every content unit of a product, active or not.
	ListContentIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)

	// GetCardSequence returns the active and validated cards of a content unit
	// in display order. The sequence is empty if the content has no such cards.
	GetCardSequence(ctx context.Context, contentID uuid.UUID) (*domain.CardSequence, error)

	// GetCard retrieves a card by ID.
	// Returns ErrCardNotFound if the card does not exist.
	GetCard(ctx context.Context, id uuid.UUID) (*domain.Card, error)

	// WithTx returns a new CatalogStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CatalogStore
}
