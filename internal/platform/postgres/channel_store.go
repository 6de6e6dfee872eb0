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

const channelColumns = `id, user_id, channel_type, identifier, is_active, push_enabled, is_primary, created_at`

// PostgresChannelStore implements the store.ChannelStore interface
// using a PostgreSQL database as the storage backend.
type PostgresChannelStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresChannelStore creates a new PostgreSQL implementation of the ChannelStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresChannelStore(db store.DBTX, logger *slog.Logger) *PostgresChannelStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresChannelStore{
		db:     db,
		logger: logger.With(slog.String("component", "channel_store")),
	}
}

// Ensure PostgresChannelStore implements store.ChannelStore interface
var _ store.ChannelStore = (*PostgresChannelStore)(nil)

// WithTx implements store.ChannelStore.WithTx
func (s *PostgresChannelStore) WithTx(tx *sql.Tx) store.ChannelStore {
	return &PostgresChannelStore{
		db:     tx,
		logger: s.logger,
	}
}

// ListByUser implements store.ChannelStore.ListByUser
func (s *PostgresChannelStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Channel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + channelColumns + `
		FROM user_channels
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		log.Error("failed to query channels",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, store.NewStoreError("channel", "list", "failed to query channels", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	channels := []*domain.Channel{}
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			log.Error("failed to scan channel row", slog.String("error", err.Error()))
			return nil, store.NewStoreError("channel", "list", "failed to scan channel", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("channel", "list", "failed to iterate channels", err)
	}

	log.Debug("listed channels",
		slog.String("user_id", userID.String()),
		slog.Int("count", len(channels)))
	return channels, nil
}

// GetByID implements store.ChannelStore.GetByID
func (s *PostgresChannelStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + channelColumns + ` FROM user_channels WHERE id = $1`
	channel, err := scanChannel(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("channel not found", slog.String("channel_id", id.String()))
			return nil, store.ErrChannelNotFound
		}
		log.Error("failed to get channel",
			slog.String("error", err.Error()),
			slog.String("channel_id", id.String()))
		return nil, store.NewStoreError("channel", "get", "failed to query channel", MapError(err))
	}
	return channel, nil
}

func scanChannel(row rowScanner) (*domain.Channel, error) {
	var (
		c           domain.Channel
		channelType string
	)
	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&channelType,
		&c.Identifier,
		&c.IsActive,
		&c.PushEnabled,
		&c.IsPrimary,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.Type = domain.ChannelType(channelType)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
