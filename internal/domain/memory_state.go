package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Default SM-2 values for a freshly enrolled content unit.
const (
	DefaultEasiness = 2.5
	MinEasiness     = 1.3
)

// Common validation errors for MemoryState
var (
	ErrEmptyStateUserID    = errors.New("memory state user ID cannot be empty")
	ErrEmptyStateContentID = errors.New("memory state content ID cannot be empty")
	ErrInvalidIteration    = errors.New("iteration must be greater than or equal to 0")
	ErrInvalidInterval     = errors.New("interval must be greater than or equal to 0")
	ErrInvalidEasiness     = errors.New("easiness must be at least 1.3")
	ErrInvalidCardIndex    = errors.New("card index must be greater than or equal to 0")
)

// MemoryState tracks how well a user remembers one content unit.
// It is created when the user subscribes to a product and only changes
// through a feedback event.
type MemoryState struct {
	UserID       uuid.UUID  `json:"user_id"`
	ContentID    uuid.UUID  `json:"content_id"`
	Iteration    int        `json:"iteration"`  // Consecutive correct recalls
	Easiness     float64    `json:"easiness"`   // SM-2 easiness factor, never below 1.3
	Interval     int        `json:"interval"`   // Days until the next review
	CardIndex    int        `json:"card_index"` // Position in the content's card sequence
	ReviewCount  int        `json:"review_count"`
	NextReviewAt time.Time  `json:"next_review_at"`
	LastReviewAt *time.Time `json:"last_review_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewMemoryState creates the initial state for a user and content unit.
// The content is due for review immediately.
func NewMemoryState(userID, contentID uuid.UUID, now time.Time) (*MemoryState, error) {
	now = now.UTC()
	state := &MemoryState{
		UserID:       userID,
		ContentID:    contentID,
		Iteration:    0,
		Easiness:     DefaultEasiness,
		Interval:     0,
		CardIndex:    0,
		NextReviewAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}

	return state, nil
}

// Validate checks if the MemoryState has valid data.
func (s *MemoryState) Validate() error {
	if s.UserID == uuid.Nil {
		return ErrEmptyStateUserID
	}
	if s.ContentID == uuid.Nil {
		return ErrEmptyStateContentID
	}
	if s.Iteration < 0 {
		return ErrInvalidIteration
	}
	if s.Interval < 0 {
		return ErrInvalidInterval
	}
	if s.Easiness < MinEasiness {
		return ErrInvalidEasiness
	}
	if s.CardIndex < 0 {
		return ErrInvalidCardIndex
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *MemoryState) Clone() *MemoryState {
	c := *s
	if s.LastReviewAt != nil {
		t := *s.LastReviewAt
		c.LastReviewAt = &t
	}
	return &c
}
