package srs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultService(t *testing.T) {
	t.Parallel()
	service, err := NewDefaultService()
	require.NoError(t, err, "Failed to create SRS service")
	require.NotNil(t, service)

	defaultService, ok := service.(*defaultService)
	require.True(t, ok, "Expected *defaultService type")
	assert.NotNil(t, defaultService.params)
}

func TestNewServiceWithInvalidParams(t *testing.T) {
	t.Parallel()
	params := NewDefaultParams()
	params.FirstInterval = 0

	service, err := NewServiceWithParams(params)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Nil(t, service)
}

func TestCalculateNextStateValidation(t *testing.T) {
	t.Parallel()
	service, err := NewDefaultService()
	require.NoError(t, err)
	now := time.Now().UTC()
	state, err := domain.NewMemoryState(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		state   *domain.MemoryState
		quality domain.Quality
		seqLen  int
		wantErr error
	}{
		{name: "nil state", state: nil, quality: 3, seqLen: 1, wantErr: ErrNilState},
		{name: "quality above scale", state: state, quality: 6, seqLen: 1, wantErr: ErrInvalidQuality},
		{name: "negative quality", state: state, quality: -1, seqLen: 1, wantErr: ErrInvalidQuality},
		{name: "empty sequence", state: state, quality: 3, seqLen: 0, wantErr: ErrInvalidSequence},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := service.CalculateNextState(tc.state, tc.quality, tc.seqLen, now)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, next)
		})
	}
}

// Walks a new state through two perfect recalls and one failure.
func TestCalculateNextStateReviewSequence(t *testing.T) {
	t.Parallel()
	service, err := NewDefaultService()
	require.NoError(t, err)

	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	state, err := domain.NewMemoryState(uuid.New(), uuid.New(), start)
	require.NoError(t, err)

	steps := []struct {
		quality   domain.Quality
		iteration int
		interval  int
		easiness  float64
		cardIndex int
	}{
		{quality: 5, iteration: 1, interval: 1, easiness: 2.6, cardIndex: 1},
		{quality: 5, iteration: 2, interval: 6, easiness: 2.7, cardIndex: 2},
		{quality: 2, iteration: 0, interval: 1, easiness: 2.38, cardIndex: 0},
	}

	now := start
	for i, step := range steps {
		state, err = service.CalculateNextState(state, step.quality, 3, now)
		require.NoError(t, err, "step %d", i)

		assert.Equal(t, step.iteration, state.Iteration, "step %d iteration", i)
		assert.Equal(t, step.interval, state.Interval, "step %d interval", i)
		assert.InDelta(t, step.easiness, state.Easiness, 1e-9, "step %d easiness", i)
		assert.Equal(t, step.cardIndex, state.CardIndex, "step %d card index", i)
		assert.Equal(t, now.AddDate(0, 0, step.interval), state.NextReviewAt, "step %d next review", i)
		assert.Equal(t, i+1, state.ReviewCount)

		now = state.NextReviewAt
	}
}

func TestCalculateNextStateIntervalGrowth(t *testing.T) {
	t.Parallel()
	service, err := NewDefaultService()
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	state, err := domain.NewMemoryState(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	// Quality 4 keeps easiness at 2.5
	expected := []int{1, 6, 15, 38, 95}
	for i, want := range expected {
		state, err = service.CalculateNextState(state, 4, 1, now)
		require.NoError(t, err)
		assert.Equal(t, want, state.Interval, "review %d", i+1)
		assert.InDelta(t, 2.5, state.Easiness, 1e-9)
	}
}

func TestCalculateNextStateEasinessNeverBelowFloor(t *testing.T) {
	t.Parallel()
	service, err := NewDefaultService()
	require.NoError(t, err)

	now := time.Now().UTC()
	state, err := domain.NewMemoryState(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		state, err = service.CalculateNextState(state, 0, 2, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.Easiness, domain.MinEasiness)
		assert.Equal(t, 0, state.Iteration)
		assert.Equal(t, 1, state.Interval)
	}
	assert.InDelta(t, domain.MinEasiness, state.Easiness, 1e-9)
}

func TestCalculateNextStateIsDeterministic(t *testing.T) {
	t.Parallel()
	service, err := NewDefaultService()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := &domain.MemoryState{
		UserID:    uuid.New(),
		ContentID: uuid.New(),
		Iteration: 3,
		Easiness:  2.18,
		Interval:  14,
		CardIndex: 1,
	}

	first, err := service.CalculateNextState(state, 3, 4, now)
	require.NoError(t, err)
	second, err := service.CalculateNextState(state, 3, 4, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 31, first.Interval) // round(14 * 2.18) = round(30.52)
	assert.InDelta(t, 2.04, first.Easiness, 1e-9)
}
