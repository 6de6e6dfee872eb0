package domain

import (
	"fmt"
	"math"
)

// Quality is a recall quality score on the SM-2 scale (0-5).
type Quality int

// Quality bounds and thresholds on the canonical SM-2 scale.
const (
	QualityMin Quality = 0
	QualityMax Quality = 5

	// QualityPassThreshold is the lowest score counted as a successful recall.
	QualityPassThreshold Quality = 3
)

// QualityScale names the scale a feedback score was submitted on.
type QualityScale string

const (
	// ScaleSM2 is the canonical 0-5 scale.
	ScaleSM2 QualityScale = "sm2"

	// ScaleEngagement is the 1-10 engagement score used by some clients.
	ScaleEngagement QualityScale = "engagement"
)

// Engagement score bounds.
const (
	engagementMin = 1
	engagementMax = 10
)

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= QualityPassThreshold
}

// Valid reports whether q lies on the SM-2 scale.
func (q Quality) Valid() bool {
	return q >= QualityMin && q <= QualityMax
}

// NewQuality validates score against scale and returns it on the canonical SM-2 scale.
// Engagement scores are normalized with round(score/2), clamped to [0,5].
// Scores outside the declared scale are rejected, never clamped.
func NewQuality(score int, scale QualityScale) (Quality, error) {
	switch scale {
	case "", ScaleSM2:
		q := Quality(score)
		if !q.Valid() {
			return 0, NewValidationError("quality",
				fmt.Sprintf("must be between %d and %d", QualityMin, QualityMax), ErrInvalidQuality)
		}
		return q, nil
	case ScaleEngagement:
		if score < engagementMin || score > engagementMax {
			return 0, NewValidationError("quality",
				fmt.Sprintf("must be between %d and %d", engagementMin, engagementMax), ErrInvalidQuality)
		}
		return normalizeEngagement(score), nil
	default:
		return 0, NewValidationError("scale", "is not a known quality scale", ErrValidation)
	}
}

func normalizeEngagement(score int) Quality {
	q := Quality(math.Round(float64(score) / 2))
	if q < QualityMin {
		return QualityMin
	}
	if q > QualityMax {
		return QualityMax
	}
	return q
}
