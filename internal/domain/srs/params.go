package srs

import (
	"errors"

	"github.com/phrazzld/nudge-api/internal/domain"
)

// ErrInvalidParams is returned when a Params value cannot drive the algorithm.
var ErrInvalidParams = errors.New("invalid SRS parameters")

// Params defines the configurable constants of the SM-2 algorithm
type Params struct {
	// Lowest easiness factor a state can reach
	MinEasiness float64

	// Intervals in days used for the first two successful recalls
	FirstInterval  int
	SecondInterval int

	// Interval in days after a failed recall
	LapseInterval int
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance.
// Zero fields keep the default.
type ParamsConfig struct {
	MinEasiness    float64
	FirstInterval  int
	SecondInterval int
	LapseInterval  int
}

// NewDefaultParams creates a new Params instance with the classic SM-2 values
func NewDefaultParams() *Params {
	return &Params{
		MinEasiness:    domain.MinEasiness,
		FirstInterval:  1,
		SecondInterval: 6,
		LapseInterval:  1,
	}
}

// NewParams creates a new Params instance with custom configuration
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.MinEasiness > 0 {
		params.MinEasiness = config.MinEasiness
	}
	if config.FirstInterval > 0 {
		params.FirstInterval = config.FirstInterval
	}
	if config.SecondInterval > 0 {
		params.SecondInterval = config.SecondInterval
	}
	if config.LapseInterval > 0 {
		params.LapseInterval = config.LapseInterval
	}

	return params
}

// Validate checks that the parameters keep every computed interval at least one day.
func (p *Params) Validate() error {
	switch {
	case p == nil:
		return ErrInvalidParams
	case p.MinEasiness < 1:
		return errors.Join(ErrInvalidParams, errors.New("minimum easiness must be at least 1"))
	case p.FirstInterval < 1, p.SecondInterval < 1, p.LapseInterval < 1:
		return errors.Join(ErrInvalidParams, errors.New("intervals must be at least 1 day"))
	}
	return nil
}
