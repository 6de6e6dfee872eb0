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

const cardColumns = `
	c.id, c.content_id, lc.name, c.card_type, c.card_data, c.display_order`

// PostgresCatalogStore implements the store.CatalogStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCatalogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCatalogStore creates a new PostgreSQL implementation of the CatalogStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCatalogStore(db store.DBTX, logger *slog.Logger) *PostgresCatalogStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCatalogStore{
		db:     db,
		logger: logger.With(slog.String("component", "catalog_store")),
	}
}

// Ensure PostgresCatalogStore implements store.CatalogStore interface
var _ store.CatalogStore = (*PostgresCatalogStore)(nil)

// WithTx implements store.CatalogStore.WithTx
func (s *PostgresCatalogStore) WithTx(tx *sql.Tx) store.CatalogStore {
	return &PostgresCatalogStore{
		db:     tx,
		logger: s.logger,
	}
}

// GetProduct implements store.CatalogStore.GetProduct
func (s *PostgresCatalogStore) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var p domain.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_active FROM learning_products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("product not found", slog.String("product_id", id.String()))
			return nil, store.ErrProductNotFound
		}
		log.Error("failed to get product",
			slog.String("error", err.Error()),
			slog.String("product_id", id.String()))
		return nil, store.NewStoreError("product", "get", "failed to query product", MapError(err))
	}
	return &p, nil
}

// ListActiveContents implements store.CatalogStore.ListActiveContents
func (s *PostgresCatalogStore) ListActiveContents(
	ctx context.Context,
	productID uuid.UUID,
) ([]*domain.Content, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, product_id, name, content_type, display_order, is_active
		FROM learning_contents
		WHERE product_id = $1 AND is_active
		ORDER BY display_order, id
	`
	rows, err := s.db.QueryContext(ctx, query, productID)
	if err != nil {
		log.Error("failed to query contents",
			slog.String("error", err.Error()),
			slog.String("product_id", productID.String()))
		return nil, store.NewStoreError("content", "list", "failed to query contents", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	contents := []*domain.Content{}
	for rows.Next() {
		var c domain.Content
		if err := rows.Scan(&c.ID, &c.ProductID, &c.Name, &c.ContentType, &c.DisplayOrder, &c.IsActive); err != nil {
			return nil, store.NewStoreError("content", "list", "failed to scan content", err)
		}
		contents = append(contents, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("content", "list", "failed to iterate contents", err)
	}

	log.Debug("listed active contents",
		slog.String("product_id", productID.String()),
		slog.Int("count", len(contents)))
	return contents, nil
}

// ListContentIDs implements store.CatalogStore.ListContentIDs
func (s *PostgresCatalogStore) ListContentIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM learning_contents WHERE product_id = $1 ORDER BY display_order, id`, productID)
	if err != nil {
		log.Error("failed to query content ids",
			slog.String("error", err.Error()),
			slog.String("product_id", productID.String()))
		return nil, store.NewStoreError("content", "list_ids", "failed to query contents", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStoreError("content", "list_ids", "failed to scan content id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("content", "list_ids", "failed to iterate contents", err)
	}
	return ids, nil
}

// GetCardSequence implements store.CatalogStore.GetCardSequence
// Only cards that are both active and validated take part in rotation.
func (s *PostgresCatalogStore) GetCardSequence(
	ctx context.Context,
	contentID uuid.UUID,
) (*domain.CardSequence, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + cardColumns + `
		FROM learning_cards c
		JOIN learning_contents lc ON lc.id = c.content_id
		WHERE c.content_id = $1 AND c.is_active AND c.is_valid
		ORDER BY c.display_order, c.id
	`
	rows, err := s.db.QueryContext(ctx, query, contentID)
	if err != nil {
		log.Error("failed to query card sequence",
			slog.String("error", err.Error()),
			slog.String("content_id", contentID.String()))
		return nil, store.NewStoreError("card", "sequence", "failed to query cards", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	seq := &domain.CardSequence{ContentID: contentID, Cards: []*domain.Card{}}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, store.NewStoreError("card", "sequence", "failed to scan card", err)
		}
		seq.Cards = append(seq.Cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("card", "sequence", "failed to iterate cards", err)
	}

	log.Debug("loaded card sequence",
		slog.String("content_id", contentID.String()),
		slog.Int("length", seq.Len()))
	return seq, nil
}

// GetCard implements store.CatalogStore.GetCard
func (s *PostgresCatalogStore) GetCard(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + cardColumns + `
		FROM learning_cards c
		JOIN learning_contents lc ON lc.id = c.content_id
		WHERE c.id = $1
	`
	card, err := scanCard(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("card not found", slog.String("card_id", id.String()))
			return nil, store.ErrCardNotFound
		}
		log.Error("failed to get card",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return nil, store.NewStoreError("card", "get", "failed to query card", MapError(err))
	}
	return card, nil
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var (
		c        domain.Card
		cardType string
		data     []byte
	)
	if err := row.Scan(&c.ID, &c.ContentID, &c.ContentName, &cardType, &data, &c.DisplayOrder); err != nil {
		return nil, err
	}
	c.Type = domain.CardType(cardType)
	c.Data = data
	return &c, nil
}
