// Package backoff computes when a failed delivery should be attempted again.
package backoff

import (
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrInvalidPolicy is returned when a Policy cannot produce a delay.
var ErrInvalidPolicy = errors.New("invalid backoff policy")

// Default policy values.
const (
	DefaultBase       = time.Minute
	DefaultMaxBackoff = time.Hour
	DefaultMaxRetries = 5
)

// Policy is an exponential backoff capped at MaxBackoff and MaxRetries.
// The n-th retry (starting at 0) waits Base * 2^n.
type Policy struct {
	Base       time.Duration
	MaxBackoff time.Duration
	MaxRetries int
}

// NewDefaultPolicy returns the policy used when nothing is configured.
func NewDefaultPolicy() Policy {
	return Policy{
		Base:       DefaultBase,
		MaxBackoff: DefaultMaxBackoff,
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	switch {
	case p.Base <= 0:
		return errors.Join(ErrInvalidPolicy, errors.New("base must be positive"))
	case p.MaxBackoff < p.Base:
		return errors.Join(ErrInvalidPolicy, errors.New("max backoff must be at least base"))
	case p.MaxRetries < 0:
		return errors.Join(ErrInvalidPolicy, errors.New("max retries must not be negative"))
	}
	return nil
}

func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(p.MaxBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxRetries), b)
}

// Delay returns the wait before the next attempt of a delivery that has
// already been retried retryCount times. The second value is false once
// retries are exhausted.
func (p Policy) Delay(retryCount int) (time.Duration, bool) {
	if retryCount < 0 {
		retryCount = 0
	}
	b := p.backoff()

	var next time.Duration
	for i := 0; i <= retryCount; i++ {
		d, stop := b.Next()
		if stop {
			return 0, false
		}
		next = d
	}
	return next, true
}

// NextRetryAt returns the absolute time of the next attempt.
func (p Policy) NextRetryAt(retryCount int, now time.Time) (time.Time, bool) {
	d, ok := p.Delay(retryCount)
	if !ok {
		return time.Time{}, false
	}
	return now.UTC().Add(d), true
}
