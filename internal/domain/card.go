package domain

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// CardType is the representation a card uses to present its content.
type CardType string

// Card types in the order a content unit typically rotates through them.
const (
	CardTypeMeaningPronunciation CardType = "meaning_pronunciation"
	CardTypeImage                CardType = "image"
	CardTypeExampleSentence      CardType = "example_sentence"
	CardTypeEtymology            CardType = "etymology"
	CardTypeSynonymAntonym       CardType = "synonym_antonym"
)

// ErrEmptySequence is returned when a content unit has no deliverable cards.
var ErrEmptySequence = errors.New("card sequence is empty")

// Card is one representation of a content unit.
// The payload is stored as JSON and passed through untouched.
type Card struct {
	ID           uuid.UUID       `json:"id"`
	ContentID    uuid.UUID       `json:"content_id"`
	ContentName  string          `json:"content_name"`
	Type         CardType        `json:"card_type"`
	Data         json.RawMessage `json:"card_data,omitempty"`
	DisplayOrder int             `json:"display_order"`
}

// Product is a subscribable collection of content units.
type Product struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}

// Content is an atomic learnable item inside a product.
type Content struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	Name         string    `json:"name"`
	ContentType  string    `json:"content_type"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `json:"is_active"`
}

// CardSequence is the fixed, ordered list of active and validated cards of
// one content unit. It is read-only: it only drives card rotation.
type CardSequence struct {
	ContentID uuid.UUID
	Cards     []*Card
}

// Len returns the number of cards in the sequence.
func (s *CardSequence) Len() int {
	return len(s.Cards)
}

// At resolves a card index against the sequence, wrapping modulo its length.
func (s *CardSequence) At(index int) (*Card, error) {
	n := len(s.Cards)
	if n == 0 {
		return nil, ErrEmptySequence
	}
	i := index % n
	if i < 0 {
		i += n
	}
	return s.Cards[i], nil
}
