package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// SubscriptionStore defines the interface for product subscription persistence.
type SubscriptionStore interface {
	// Upsert creates the subscription or, when the user is already subscribed to the
	// product, updates its tier, channel and delay and reactivates it.
	// The stored row is returned; on update it keeps its original ID and SubscribedAt.
	Upsert(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)

	// Get retrieves the subscription of a user to a product.
	// Returns ErrSubscriptionNotFound if there is none.
	Get(ctx context.Context, userID, productID uuid.UUID) (*domain.Subscription, error)

	// Update saves the status fields of an existing subscription.
	// Returns ErrSubscriptionNotFound if the subscription does not exist.
	Update(ctx context.Context, sub *domain.Subscription) error

	// WithTx returns a new SubscriptionStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) SubscriptionStore
}
