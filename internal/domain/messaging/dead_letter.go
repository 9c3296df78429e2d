package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FailureType categorizes why a correction job was dead-lettered. The
// taxonomy supports both operator triage and failure-pattern analysis.
type FailureType string

// FailureType constants. Transient classes exhausted their delivery
// attempts before landing here; permanent classes can never succeed without
// intervention.
const (
	FailureTypeTransport           FailureType = "TRANSPORT_ERROR"
	FailureTypeUpstream            FailureType = "UPSTREAM_ERROR"
	FailureTypeTruncationExhausted FailureType = "TRUNCATION_EXHAUSTED"
	FailureTypeValidation          FailureType = "VALIDATION_ERROR"
	FailureTypeIdentityViolation   FailureType = "IDENTITY_VIOLATION"
	FailureTypeUnknown             FailureType = "UNKNOWN"
)

// Classification patterns, checked in order of expected frequency.
var (
	transportPatterns  = []string{"transport unavailable", "connection", "dial tcp", "timeout"}
	truncationPatterns = []string{"truncated at every budget"}
	upstreamPatterns   = []string{"upstream corrector", "unparseable", "refused"}
	validationPatterns = []string{"still invalid", "validation failed", "required field"}
	identityPatterns   = []string{"identity violation"}
)

// ClassifyFailure maps an error message onto a FailureType using the same
// single-pass lowered-string matching the rest of the pipeline uses for
// error classification.
func ClassifyFailure(errorMessage string) FailureType {
	if errorMessage == "" {
		return FailureTypeUnknown
	}

	lowered := strings.ToLower(errorMessage)

	switch {
	case containsAnyPattern(lowered, identityPatterns):
		return FailureTypeIdentityViolation
	case containsAnyPattern(lowered, truncationPatterns):
		return FailureTypeTruncationExhausted
	case containsAnyPattern(lowered, validationPatterns):
		return FailureTypeValidation
	case containsAnyPattern(lowered, upstreamPatterns):
		return FailureTypeUpstream
	case containsAnyPattern(lowered, transportPatterns):
		return FailureTypeTransport
	default:
		return FailureTypeUnknown
	}
}

func containsAnyPattern(lowered string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// DeadLetterRecord is the terminal failure record emitted when a job is
// removed from the queue after exhausting its delivery attempts. It carries
// enough context for manual follow-up, because no further automatic
// recovery will occur.
type DeadLetterRecord struct {
	RecordID        string        `json:"record_id"`
	OriginalJob     CorrectionJob `json:"original_job"`
	FailureType     FailureType   `json:"failure_type"`
	LastError       string        `json:"last_error"`
	DeliveryCount   int           `json:"delivery_count"`
	DeadLetteredAt  time.Time     `json:"dead_lettered_at"`
	ProcessingStage string        `json:"processing_stage"`
}

// NewDeadLetterRecord builds the terminal record for a failed job.
func NewDeadLetterRecord(
	job CorrectionJob,
	lastErr error,
	deliveryCount int,
	processingStage string,
) (DeadLetterRecord, error) {
	if lastErr == nil {
		return DeadLetterRecord{}, errors.New("dead letter record requires the last error")
	}
	if deliveryCount < 1 {
		return DeadLetterRecord{}, errors.New("delivery count must be at least 1")
	}

	record := DeadLetterRecord{
		RecordID:        GenerateDeadLetterID(),
		OriginalJob:     job,
		FailureType:     ClassifyFailure(lastErr.Error()),
		LastError:       lastErr.Error(),
		DeliveryCount:   deliveryCount,
		DeadLetteredAt:  time.Now().UTC(),
		ProcessingStage: processingStage,
	}

	if err := record.Validate(); err != nil {
		return DeadLetterRecord{}, err
	}
	return record, nil
}

// Validate validates the dead letter record.
func (r *DeadLetterRecord) Validate() error {
	if r.RecordID == "" {
		return errors.New("record_id is required")
	}
	if r.FailureType == "" {
		return errors.New("failure_type is required")
	}
	if r.LastError == "" {
		return errors.New("last_error is required")
	}
	if r.DeliveryCount < 1 {
		return errors.New("delivery_count must be at least 1")
	}
	if err := r.OriginalJob.Validate(); err != nil {
		return fmt.Errorf("original job validation failed: %w", err)
	}
	return nil
}

// IsContractFailure reports whether the record documents a programming
// contract failure rather than a document that merely could not be fixed.
func (r *DeadLetterRecord) IsContractFailure() bool {
	return r.FailureType == FailureTypeIdentityViolation
}

// GenerateDeadLetterID generates a unique dead letter record ID.
func GenerateDeadLetterID() string {
	return fmt.Sprintf("dlq-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8])
}
