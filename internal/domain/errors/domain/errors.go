// Package domain defines the error taxonomy of the correction pipeline.
// Sentinels are matched with errors.Is so callers can branch on the class of
// failure without inspecting strings; the consumer loop maps every class
// except identity violations onto its retry/dead-letter decision.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the pipeline distinguishes.
var (
	// ErrTransport marks queue or store unavailability. The consumer loop
	// logs it and keeps polling; a single failed poll is not fatal.
	ErrTransport = errors.New("transport unavailable")

	// ErrTruncationExhausted marks a correction that never fit within the
	// largest configured token budget.
	ErrTruncationExhausted = errors.New("correction truncated at every budget")

	// ErrUpstream marks a corrector refusal, hard failure, or unparseable
	// response. More budget cannot fix these, so the engine never escalates
	// on them.
	ErrUpstream = errors.New("upstream corrector failure")

	// ErrIdentityViolation marks a document identifier mismatch detected
	// after correction. A programming-contract failure, never retried and
	// never persisted.
	ErrIdentityViolation = errors.New("document identity violation")

	// ErrStillInvalid marks a corrected document that failed re-validation.
	ErrStillInvalid = errors.New("document still invalid after correction")
)

// TransportError wraps a provider failure with the operation that hit it.
func TransportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// UpstreamError wraps a non-truncation corrector failure with detail.
func UpstreamError(detail string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUpstream, detail)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, detail, err)
}

// TruncationExhaustedError reports the ladder that was exhausted.
func TruncationExhaustedError(budgets []int) error {
	return fmt.Errorf("%w: budgets %v", ErrTruncationExhausted, budgets)
}

// IdentityViolationError reports the identifier mismatch.
func IdentityViolationError(want, got string) error {
	return fmt.Errorf("%w: want %q, got %q", ErrIdentityViolation, want, got)
}

// StillInvalidError reports the remaining violations after a correction.
func StillInvalidError(summary string) error {
	return fmt.Errorf("%w: %s", ErrStillInvalid, summary)
}

// IsRetryable reports whether a handler failure should feed the queue-level
// retry path. Identity violations are contract failures and gain nothing
// from redelivery; everything else may succeed on a later attempt because
// the corrector is nondeterministic.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrIdentityViolation)
}
