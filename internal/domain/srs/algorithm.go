package srs

import (
	"math"
	"time"

	"github.com/phrazzld/nudge-api/internal/domain"
)

// calculateNewEasiness applies the SM-2 easiness update:
//
//	EF' = EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02))
//
// The result never drops below params.MinEasiness. There is no upper bound.
func calculateNewEasiness(current float64, quality domain.Quality, params *Params) float64 {
	d := float64(domain.QualityMax - quality)
	ef := current + (0.1 - d*(0.08+d*0.02))
	if ef < params.MinEasiness {
		ef = params.MinEasiness
	}
	return ef
}

// calculateNewInterval returns the next interval in days and the new iteration count.
//
// A failed recall resets the streak. A successful one steps through the
// first and second fixed intervals and then multiplies the previous interval
// by the easiness factor from before this review.
func calculateNewInterval(
	iteration int,
	interval int,
	easiness float64,
	quality domain.Quality,
	params *Params,
) (newInterval int, newIteration int) {
	if !quality.Passed() {
		return params.LapseInterval, 0
	}

	switch iteration {
	case 0:
		newInterval = params.FirstInterval
	case 1:
		newInterval = params.SecondInterval
	default:
		newInterval = int(math.Round(float64(interval) * easiness))
	}

	// Intervals are at least one day.
	if newInterval < 1 {
		newInterval = 1
	}

	return newInterval, iteration + 1
}

// nextCardIndex rotates through the content's card sequence.
// A sequence length below 1 is treated as 1.
func nextCardIndex(current int, seqLen int) int {
	if seqLen < 1 {
		seqLen = 1
	}
	next := (current + 1) % seqLen
	if next < 0 {
		next += seqLen
	}
	return next
}

// calculateNextState produces the memory state that follows one review.
// The input state is never modified.
func calculateNextState(
	state *domain.MemoryState,
	quality domain.Quality,
	seqLen int,
	now time.Time,
	params *Params,
) *domain.MemoryState {
	now = now.UTC()
	next := state.Clone()

	next.Interval, next.Iteration = calculateNewInterval(
		state.Iteration,
		state.Interval,
		state.Easiness,
		quality,
		params,
	)
	next.Easiness = calculateNewEasiness(state.Easiness, quality, params)
	next.NextReviewAt = now.AddDate(0, 0, next.Interval)
	next.CardIndex = nextCardIndex(state.CardIndex, seqLen)
	next.ReviewCount++
	next.LastReviewAt = &now
	next.UpdatedAt = now

	return next
}
