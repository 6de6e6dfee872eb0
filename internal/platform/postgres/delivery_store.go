package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/store"
)

const deliveryColumns = `
	id, user_id, channel_id, content_id, card_id, previous_delivery_id,
	status, retry_count, last_error, next_retry_at, scheduled_at, sent_at, opened_at,
	feedback_quality, result_next_review_at, result_next_card_id,
	created_at, updated_at`

// activeStatusList is the SQL literal list of non-terminal delivery statuses.
var activeStatusList = func() string {
	quoted := make([]string, 0, len(domain.ActiveDeliveryStatuses))
	for _, s := range domain.ActiveDeliveryStatuses {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return strings.Join(quoted, ", ")
}()

// PostgresDeliveryStore implements the store.DeliveryStore interface
// using a PostgreSQL database as the storage backend.
type PostgresDeliveryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDeliveryStore creates a new PostgreSQL implementation of the DeliveryStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresDeliveryStore(db store.DBTX, logger *slog.Logger) *PostgresDeliveryStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresDeliveryStore{
		db:     db,
		logger: logger.With(slog.String("component", "delivery_store")),
	}
}

// Ensure PostgresDeliveryStore implements store.DeliveryStore interface
var _ store.DeliveryStore = (*PostgresDeliveryStore)(nil)

// WithTx implements store.DeliveryStore.WithTx
func (s *PostgresDeliveryStore) WithTx(tx *sql.Tx) store.DeliveryStore {
	return &PostgresDeliveryStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.DeliveryStore.Create
// Returns store.ErrActiveDeliveryExists when the partial unique index on active
// deliveries rejects the row.
func (s *PostgresDeliveryStore) Create(ctx context.Context, delivery *domain.Delivery) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := delivery.Validate(); err != nil {
		log.Warn("delivery validation failed during create",
			slog.String("error", err.Error()),
			slog.String("delivery_id", delivery.ID.String()))
		return err
	}

	query := `
		INSERT INTO card_deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.db.ExecContext(ctx, query, deliveryArgs(delivery)...)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrActiveDeliveryExists) {
			log.Debug("active delivery already exists",
				slog.String("user_id", delivery.UserID.String()),
				slog.String("content_id", delivery.ContentID.String()))
			return store.ErrActiveDeliveryExists
		}

		log.Error("failed to create delivery",
			slog.String("error", err.Error()),
			slog.String("delivery_id", delivery.ID.String()),
			slog.String("user_id", delivery.UserID.String()))
		return store.NewStoreError("delivery", "create", "failed to insert delivery", mapped)
	}

	log.Info("delivery created successfully",
		slog.String("delivery_id", delivery.ID.String()),
		slog.String("user_id", delivery.UserID.String()),
		slog.String("content_id", delivery.ContentID.String()),
		slog.Time("scheduled_at", delivery.ScheduledAt))
	return nil
}

// GetByID implements store.DeliveryStore.GetByID
func (s *PostgresDeliveryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	return s.getOne(ctx, id, false)
}

// GetForUpdate implements store.DeliveryStore.GetForUpdate
// The lock is held until the surrounding transaction ends.
func (s *PostgresDeliveryStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	return s.getOne(ctx, id, true)
}

func (s *PostgresDeliveryStore) getOne(ctx context.Context, id uuid.UUID, forUpdate bool) (*domain.Delivery, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	log.Debug("retrieving delivery",
		slog.String("delivery_id", id.String()),
		slog.Bool("for_update", forUpdate))

	query := `SELECT ` + deliveryColumns + ` FROM card_deliveries WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	delivery, err := scanDelivery(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("delivery not found", slog.String("delivery_id", id.String()))
			return nil, store.ErrDeliveryNotFound
		}
		log.Error("failed to get delivery",
			slog.String("error", err.Error()),
			slog.String("delivery_id", id.String()))
		return nil, store.NewStoreError("delivery", "get", "failed to query delivery", MapError(err))
	}

	return delivery, nil
}

// Update implements store.DeliveryStore.Update
func (s *PostgresDeliveryStore) Update(ctx context.Context, delivery *domain.Delivery) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := delivery.Validate(); err != nil {
		log.Warn("delivery validation failed during update",
			slog.String("error", err.Error()),
			slog.String("delivery_id", delivery.ID.String()))
		return err
	}

	query := `
		UPDATE card_deliveries
		SET status = $1, retry_count = $2, last_error = $3, next_retry_at = $4,
			sent_at = $5, opened_at = $6, feedback_quality = $7,
			result_next_review_at = $8, result_next_card_id = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := s.db.ExecContext(ctx, query,
		string(delivery.Status),
		delivery.RetryCount,
		stringArg(delivery.LastError),
		timeArg(delivery.NextRetryAt),
		timeArg(delivery.SentAt),
		timeArg(delivery.OpenedAt),
		qualityArg(delivery.FeedbackQuality),
		timeArg(delivery.ResultNextReviewAt),
		uuidArg(delivery.ResultNextCardID),
		delivery.UpdatedAt.UTC(),
		delivery.ID,
	)
	if err != nil {
		log.Error("failed to update delivery",
			slog.String("error", err.Error()),
			slog.String("delivery_id", delivery.ID.String()),
			slog.String("status", string(delivery.Status)))
		return store.NewStoreError("delivery", "update", "failed to update delivery", MapError(err))
	}

	if err := CheckRowsAffected(result, store.ErrDeliveryNotFound); err != nil {
		log.Debug("delivery not updated",
			slog.String("error", err.Error()),
			slog.String("delivery_id", delivery.ID.String()))
		return err
	}

	log.Info("delivery updated successfully",
		slog.String("delivery_id", delivery.ID.String()),
		slog.String("status", string(delivery.Status)),
		slog.Int("retry_count", delivery.RetryCount))
	return nil
}

// ListActiveForContents implements store.DeliveryStore.ListActiveForContents
func (s *PostgresDeliveryStore) ListActiveForContents(
	ctx context.Context,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
) ([]*domain.Delivery, error) {
	if len(contentIDs) == 0 {
		return []*domain.Delivery{}, nil
	}

	ids := make([]string, len(contentIDs))
	for i, id := range contentIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT ` + deliveryColumns + `
		FROM card_deliveries
		WHERE user_id = $1
			AND content_id = ANY(string_to_array($2, ',')::uuid[])
			AND status IN (` + activeStatusList + `)
		ORDER BY created_at
		FOR UPDATE
	`
	return s.list(ctx, "list_active", query, userID, strings.Join(ids, ","))
}

// ListDue implements store.DeliveryStore.ListDue
// It takes no row locks: the list is read and returned after the unit of work
// commits. Send results are recorded under GetForUpdate, and a repeated send
// report for the same row is absorbed there.
func (s *PostgresDeliveryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + deliveryColumns + `
		FROM card_deliveries
		WHERE (status = 'pending' AND scheduled_at <= $1)
			OR (status = 'retry_required' AND next_retry_at <= $1)
		ORDER BY COALESCE(next_retry_at, scheduled_at), id
		LIMIT $2
	`
	return s.list(ctx, "list_due", query, now.UTC(), limit)
}

func (s *PostgresDeliveryStore) list(ctx context.Context, op, query string, args ...any) ([]*domain.Delivery, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query deliveries",
			slog.String("error", err.Error()),
			slog.String("operation", op))
		return nil, store.NewStoreError("delivery", op, "failed to query deliveries", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	deliveries := []*domain.Delivery{}
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			log.Error("failed to scan delivery row", slog.String("error", err.Error()))
			return nil, store.NewStoreError("delivery", op, "failed to scan delivery", err)
		}
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, store.NewStoreError("delivery", op, "failed to iterate deliveries", err)
	}

	log.Debug("listed deliveries",
		slog.String("operation", op),
		slog.Int("count", len(deliveries)))
	return deliveries, nil
}

func deliveryArgs(d *domain.Delivery) []any {
	return []any{
		d.ID,
		d.UserID,
		d.ChannelID,
		d.ContentID,
		d.CardID,
		uuidArg(d.PreviousDeliveryID),
		string(d.Status),
		d.RetryCount,
		stringArg(d.LastError),
		timeArg(d.NextRetryAt),
		d.ScheduledAt.UTC(),
		timeArg(d.SentAt),
		timeArg(d.OpenedAt),
		qualityArg(d.FeedbackQuality),
		timeArg(d.ResultNextReviewAt),
		uuidArg(d.ResultNextCardID),
		d.CreatedAt.UTC(),
		d.UpdatedAt.UTC(),
	}
}

func scanDelivery(row rowScanner) (*domain.Delivery, error) {
	var (
		d                  domain.Delivery
		status             string
		previousID         uuid.NullUUID
		lastError          sql.NullString
		nextRetryAt        sql.NullTime
		sentAt             sql.NullTime
		openedAt           sql.NullTime
		feedbackQuality    sql.NullInt16
		resultNextReviewAt sql.NullTime
		resultNextCardID   uuid.NullUUID
	)

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.ChannelID,
		&d.ContentID,
		&d.CardID,
		&previousID,
		&status,
		&d.RetryCount,
		&lastError,
		&nextRetryAt,
		&d.ScheduledAt,
		&sentAt,
		&openedAt,
		&feedbackQuality,
		&resultNextReviewAt,
		&resultNextCardID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = domain.DeliveryStatus(status)
	d.PreviousDeliveryID = nullUUIDPtr(previousID)
	d.LastError = lastError.String
	d.NextRetryAt = nullTimePtr(nextRetryAt)
	d.ScheduledAt = d.ScheduledAt.UTC()
	d.SentAt = nullTimePtr(sentAt)
	d.OpenedAt = nullTimePtr(openedAt)
	if feedbackQuality.Valid {
		q := domain.Quality(feedbackQuality.Int16)
		d.FeedbackQuality = &q
	}
	d.ResultNextReviewAt = nullTimePtr(resultNextReviewAt)
	d.ResultNextCardID = nullUUIDPtr(resultNextCardID)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func qualityArg(q *domain.Quality) sql.NullInt16 {
	if q == nil {
		return sql.NullInt16{}
	}
	return sql.NullInt16{Int16: int16(*q), Valid: true}
}
