// Package srs implements the SM-2 review scheduler.
package srs

import (
	"errors"
	"time"

	"github.com/phrazzld/nudge-api/internal/domain"
)

// Common errors
var (
	ErrNilState        = errors.New("memory state cannot be nil")
	ErrInvalidQuality  = errors.New("quality must be between 0 and 5")
	ErrInvalidSequence = errors.New("card sequence length must be at least 1")
)

// Service defines the interface for SRS algorithm operations
type Service interface {
	// CalculateNextState computes the state that follows a review of quality q.
	// seqLen is the length of the content's card sequence and drives card rotation.
	CalculateNextState(
		state *domain.MemoryState,
		quality domain.Quality,
		seqLen int,
		now time.Time,
	) (*domain.MemoryState, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new SRS service with default parameters
func NewDefaultService() (Service, error) {
	return NewServiceWithParams(NewDefaultParams())
}

// NewServiceWithParams creates a new SRS service with custom parameters
func NewServiceWithParams(params *Params) (Service, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &defaultService{
		params: params,
	}, nil
}

// CalculateNextState implements the Service interface
func (s *defaultService) CalculateNextState(
	state *domain.MemoryState,
	quality domain.Quality,
	seqLen int,
	now time.Time,
) (*domain.MemoryState, error) {
	if state == nil {
		return nil, ErrNilState
	}
	if !quality.Valid() {
		return nil, ErrInvalidQuality
	}
	if seqLen < 1 {
		return nil, ErrInvalidSequence
	}

	return calculateNextState(state, quality, seqLen, now, s.params), nil
}
