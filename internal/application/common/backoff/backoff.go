// Package backoff implements the retry delay policy shared by the queue
// consumer (visibility extension) and internal pacing. The policy is a pure
// function of the attempt number: deterministic, monotonically
// non-decreasing, and capped by a ceiling.
package backoff

import (
	"errors"
	"math"
	"time"
)

// Policy computes exponential backoff delays: min(base * 2^(n-1), ceiling)
// for 1-indexed attempt n. Attempt 1 yields the base delay.
type Policy struct {
	base    time.Duration
	ceiling time.Duration
}

// NewPolicy creates a backoff policy. Base must be positive and the ceiling
// must be at least the base.
func NewPolicy(base, ceiling time.Duration) (*Policy, error) {
	if base <= 0 {
		return nil, errors.New("base delay must be positive")
	}
	if ceiling < base {
		return nil, errors.New("ceiling must be at least the base delay")
	}
	return &Policy{base: base, ceiling: ceiling}, nil
}

// Delay returns the wait duration for the given 1-indexed attempt number.
// Attempt numbers below 1 are clamped to 1 so a miscounting caller gets the
// base delay instead of a zero or negative wait.
func (p *Policy) Delay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	// Beyond this many doublings the delay has certainly passed any
	// representable ceiling; shifting further would overflow.
	const maxDoublings = 62
	exp := attemptNumber - 1
	if exp > maxDoublings {
		return p.ceiling
	}

	delay := float64(p.base) * math.Pow(2, float64(exp))
	if delay > float64(p.ceiling) || delay < 0 {
		return p.ceiling
	}
	return time.Duration(delay)
}

// Base returns the configured base delay.
func (p *Policy) Base() time.Duration {
	return p.base
}

// Ceiling returns the configured maximum delay.
func (p *Policy) Ceiling() time.Duration {
	return p.ceiling
}
