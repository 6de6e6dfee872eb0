package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/nudge-api/internal/store"
)

// UnitOfWork runs store operations inside one read-committed transaction.
// Rows that must not change concurrently are locked by the stores with
// SELECT ... FOR UPDATE.
type UnitOfWork struct {
	db     *sql.DB
	logger *slog.Logger

	states        *PostgresMemoryStateStore
	deliveries    *PostgresDeliveryStore
	channels      *PostgresChannelStore
	catalog       *PostgresCatalogStore
	subscriptions *PostgresSubscriptionStore
}

// Ensure UnitOfWork implements store.UnitOfWork interface
var _ store.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a UnitOfWork backed by db.
func NewUnitOfWork(db *sql.DB, logger *slog.Logger) *UnitOfWork {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &UnitOfWork{
		db:            db,
		logger:        logger.With(slog.String("component", "unit_of_work")),
		states:        NewPostgresMemoryStateStore(db, logger),
		deliveries:    NewPostgresDeliveryStore(db, logger),
		channels:      NewPostgresChannelStore(db, logger),
		catalog:       NewPostgresCatalogStore(db, logger),
		subscriptions: NewPostgresSubscriptionStore(db, logger),
	}
}

// Do implements store.UnitOfWork.Do
func (u *UnitOfWork) Do(ctx context.Context, fn store.UnitOfWorkFn) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return store.RunInTransactionWithOptions(ctx, u.db, opts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Repositories{
			States:        u.states.WithTx(tx),
			Deliveries:    u.deliveries.WithTx(tx),
			Channels:      u.channels.WithTx(tx),
			Catalog:       u.catalog.WithTx(tx),
			Subscriptions: u.subscriptions.WithTx(tx),
		})
	})
}
