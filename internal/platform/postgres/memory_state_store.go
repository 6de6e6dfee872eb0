package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/store"
)

const memoryStateColumns = `
	user_id, content_id, iteration, easiness, interval_days, card_index,
	review_count, next_review_at, last_review_at, created_at, updated_at`

// PostgresMemoryStateStore implements the store.MemoryStateStore interface
// using a PostgreSQL database as the storage backend.
type PostgresMemoryStateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMemoryStateStore creates a new PostgreSQL implementation of the MemoryStateStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresMemoryStateStore(db store.DBTX, logger *slog.Logger) *PostgresMemoryStateStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresMemoryStateStore{
		db:     db,
		logger: logger.With(slog.String("component", "memory_state_store")),
	}
}

// Ensure PostgresMemoryStateStore implements store.MemoryStateStore interface
var _ store.MemoryStateStore = (*PostgresMemoryStateStore)(nil)

// WithTx implements store.MemoryStateStore.WithTx
func (s *PostgresMemoryStateStore) WithTx(tx *sql.Tx) store.MemoryStateStore {
	return &PostgresMemoryStateStore{
		db:     tx,
		logger: s.logger,
	}
}

// CreateIfNotExists implements store.MemoryStateStore.CreateIfNotExists
func (s *PostgresMemoryStateStore) CreateIfNotExists(ctx context.Context, state *domain.MemoryState) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := state.Validate(); err != nil {
		log.Warn("memory state validation failed during create",
			slog.String("error", err.Error()),
			slog.String("user_id", state.UserID.String()),
			slog.String("content_id", state.ContentID.String()))
		return false, err
	}

	query := `
		INSERT INTO memory_states (` + memoryStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, content_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		state.UserID,
		state.ContentID,
		state.Iteration,
		state.Easiness,
		state.Interval,
		state.CardIndex,
		state.ReviewCount,
		state.NextReviewAt.UTC(),
		timeArg(state.LastReviewAt),
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to create memory state",
			slog.String("error", err.Error()),
			slog.String("user_id", state.UserID.String()),
			slog.String("content_id", state.ContentID.String()))
		return false, store.NewStoreError("memory_state", "create", "failed to insert memory state", MapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("memory_state", "create", "failed to get rows affected", err)
	}

	created := rows > 0
	log.Debug("memory state create attempted",
		slog.String("user_id", state.UserID.String()),
		slog.String("content_id", state.ContentID.String()),
		slog.Bool("created", created))
	return created, nil
}

// Get implements store.MemoryStateStore.Get
func (s *PostgresMemoryStateStore) Get(ctx context.Context, userID, contentID uuid.UUID) (*domain.MemoryState, error) {
	return s.getOne(ctx, userID, contentID, false)
}

// GetForUpdate implements store.MemoryStateStore.GetForUpdate
func (s *PostgresMemoryStateStore) GetForUpdate(
	ctx context.Context,
	userID, contentID uuid.UUID,
) (*domain.MemoryState, error) {
	return s.getOne(ctx, userID, contentID, true)
}

func (s *PostgresMemoryStateStore) getOne(
	ctx context.Context,
	userID, contentID uuid.UUID,
	forUpdate bool,
) (*domain.MemoryState, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + memoryStateColumns + `
		FROM memory_states
		WHERE user_id = $1 AND content_id = $2
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		state        domain.MemoryState
		lastReviewAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, userID, contentID).Scan(
		&state.UserID,
		&state.ContentID,
		&state.Iteration,
		&state.Easiness,
		&state.Interval,
		&state.CardIndex,
		&state.ReviewCount,
		&state.NextReviewAt,
		&lastReviewAt,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("memory state not found",
				slog.String("user_id", userID.String()),
				slog.String("content_id", contentID.String()))
			return nil, store.ErrMemoryStateNotFound
		}
		log.Error("failed to get memory state",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.String("content_id", contentID.String()))
		return nil, store.NewStoreError("memory_state", "get", "failed to query memory state", MapError(err))
	}

	state.NextReviewAt = state.NextReviewAt.UTC()
	state.LastReviewAt = nullTimePtr(lastReviewAt)
	state.CreatedAt = state.CreatedAt.UTC()
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

// Update implements store.MemoryStateStore.Update
func (s *PostgresMemoryStateStore) Update(ctx context.Context, state *domain.MemoryState) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := state.Validate(); err != nil {
		log.Warn("memory state validation failed during update",
			slog.String("error", err.Error()),
			slog.String("user_id", state.UserID.String()),
			slog.String("content_id", state.ContentID.String()))
		return err
	}

	query := `
		UPDATE memory_states
		SET iteration = $1, easiness = $2, interval_days = $3, card_index = $4,
			review_count = $5, next_review_at = $6, last_review_at = $7, updated_at = $8
		WHERE user_id = $9 AND content_id = $10
	`
	result, err := s.db.ExecContext(ctx, query,
		state.Iteration,
		state.Easiness,
		state.Interval,
		state.CardIndex,
		state.ReviewCount,
		state.NextReviewAt.UTC(),
		timeArg(state.LastReviewAt),
		state.UpdatedAt.UTC(),
		state.UserID,
		state.ContentID,
	)
	if err != nil {
		log.Error("failed to update memory state",
			slog.String("error", err.Error()),
			slog.String("user_id", state.UserID.String()),
			slog.String("content_id", state.ContentID.String()))
		return store.NewStoreError("memory_state", "update", "failed to update memory state", MapError(err))
	}

	if err := CheckRowsAffected(result, store.ErrMemoryStateNotFound); err != nil {
		return err
	}

	log.Debug("memory state updated",
		slog.String("user_id", state.UserID.String()),
		slog.String("content_id", state.ContentID.String()),
		slog.Int("interval", state.Interval),
		slog.Float64("easiness", state.Easiness),
		slog.Time("next_review_at", state.NextReviewAt))
	return nil
}
