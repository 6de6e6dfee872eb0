package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/store"
)

const subscriptionColumns = `
	id, user_id, product_id, channel_id, tier, dispatch_delay_seconds,
	is_active, subscribed_at, unsubscribed_at, updated_at`

// PostgresSubscriptionStore implements the store.SubscriptionStore interface
// using a PostgreSQL database as the storage backend.
type PostgresSubscriptionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSubscriptionStore creates a new PostgreSQL implementation of the SubscriptionStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresSubscriptionStore(db store.DBTX, logger *slog.Logger) *PostgresSubscriptionStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSubscriptionStore{
		db:     db,
		logger: logger.With(slog.String("component", "subscription_store")),
	}
}

// Ensure PostgresSubscriptionStore implements store.SubscriptionStore interface
var _ store.SubscriptionStore = (*PostgresSubscriptionStore)(nil)

// WithTx implements store.SubscriptionStore.WithTx
func (s *PostgresSubscriptionStore) WithTx(tx *sql.Tx) store.SubscriptionStore {
	return &PostgresSubscriptionStore{
		db:     tx,
		logger: s.logger,
	}
}

// Upsert implements store.SubscriptionStore.Upsert
func (s *PostgresSubscriptionStore) Upsert(
	ctx context.Context,
	sub *domain.Subscription,
) (*domain.Subscription, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO user_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, NULL, $7)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET channel_id = EXCLUDED.channel_id,
			tier = EXCLUDED.tier,
			dispatch_delay_seconds = EXCLUDED.dispatch_delay_seconds,
			is_active = TRUE,
			unsubscribed_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + subscriptionColumns

	stored, err := scanSubscription(s.db.QueryRowContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.ProductID,
		sub.ChannelID,
		string(sub.Tier),
		int(sub.DispatchDelay/time.Second),
		sub.SubscribedAt.UTC(),
	))
	if err != nil {
		log.Error("failed to upsert subscription",
			slog.String("error", err.Error()),
			slog.String("user_id", sub.UserID.String()),
			slog.String("product_id", sub.ProductID.String()))
		return nil, store.NewStoreError("subscription", "upsert", "failed to upsert subscription", MapError(err))
	}

	log.Info("subscription upserted",
		slog.String("subscription_id", stored.ID.String()),
		slog.String("user_id", stored.UserID.String()),
		slog.String("product_id", stored.ProductID.String()),
		slog.String("tier", string(stored.Tier)))
	return stored, nil
}

// Get implements store.SubscriptionStore.Get
func (s *PostgresSubscriptionStore) Get(
	ctx context.Context,
	userID, productID uuid.UUID,
) (*domain.Subscription, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + subscriptionColumns + `
		FROM user_subscriptions
		WHERE user_id = $1 AND product_id = $2
		FOR UPDATE
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, userID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSubscriptionNotFound
		}
		log.Error("failed to get subscription",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.String("product_id", productID.String()))
		return nil, store.NewStoreError("subscription", "get", "failed to query subscription", MapError(err))
	}
	return sub, nil
}

// Update implements store.SubscriptionStore.Update
func (s *PostgresSubscriptionStore) Update(ctx context.Context, sub *domain.Subscription) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		UPDATE user_subscriptions
		SET is_active = $1, unsubscribed_at = $2, updated_at = $3
		WHERE id = $4
	`, sub.IsActive, timeArg(sub.UnsubscribedAt), sub.UpdatedAt.UTC(), sub.ID)
	if err != nil {
		log.Error("failed to update subscription",
			slog.String("error", err.Error()),
			slog.String("subscription_id", sub.ID.String()))
		return store.NewStoreError("subscription", "update", "failed to update subscription", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrSubscriptionNotFound)
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub            domain.Subscription
		tier           string
		delaySeconds   int
		unsubscribedAt sql.NullTime
	)
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.ProductID,
		&sub.ChannelID,
		&tier,
		&delaySeconds,
		&sub.IsActive,
		&sub.SubscribedAt,
		&unsubscribedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Tier = domain.Tier(tier)
	sub.DispatchDelay = time.Duration(delaySeconds) * time.Second
	sub.SubscribedAt = sub.SubscribedAt.UTC()
	sub.UnsubscribedAt = nullTimePtr(unsubscribedAt)
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}
