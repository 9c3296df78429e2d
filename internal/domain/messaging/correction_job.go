// Package messaging provides the domain types carried over the correction
// queue. A CorrectionJob wraps a document that failed schema validation
// together with its error list; delivery is at-least-once, so consumers must
// stay idempotent and the provider-maintained delivery counter, not a field
// in the body, is the source of truth for attempt counts.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docmender/internal/domain/entity"

	"github.com/google/uuid"
)

// Message validation limits.
const (
	maxMessageIDLength = 255
	maxErrorListLength = 256

	// Timestamp validation.
	minValidYear = 2000
)

// CorrectionJob is the queue message enqueued for every document that failed
// validation. It is consumed exactly once logically, though duplicates are
// possible; the persistence layer converges on last-write-wins keyed by
// DocumentID.
type CorrectionJob struct {
	MessageID     string `json:"message_id"`
	CorrelationID string `json:"correlation_id"`

	DocumentID       string                   `json:"document_id"`
	FailedDocument   entity.Document          `json:"failed_document"`
	ValidationErrors []entity.ValidationError `json:"validation_errors"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewCorrectionJob builds a job for a document and the violations reported
// by the validator. The document id is lifted out of the document so every
// hop can key on it without decoding the payload.
func NewCorrectionJob(doc entity.Document, validationErrors []entity.ValidationError) (CorrectionJob, error) {
	if err := doc.Validate(); err != nil {
		return CorrectionJob{}, fmt.Errorf("invalid document for correction job: %w", err)
	}
	if len(validationErrors) == 0 {
		return CorrectionJob{}, errors.New("correction job requires at least one validation error")
	}

	return CorrectionJob{
		MessageID:        GenerateMessageID(),
		CorrelationID:    GenerateCorrelationID(),
		DocumentID:       doc.DocumentID,
		FailedDocument:   doc,
		ValidationErrors: validationErrors,
		EnqueuedAt:       time.Now().UTC(),
	}, nil
}

// Validate checks the job against all business rules. Returns the first
// violation encountered, or nil.
func (j *CorrectionJob) Validate() error {
	if err := j.validateIdentity(); err != nil {
		return err
	}
	if err := j.validateErrors(); err != nil {
		return err
	}
	return j.validateTimestamp()
}

func (j *CorrectionJob) validateIdentity() error {
	if j.MessageID == "" {
		return errors.New("message_id is required")
	}
	if len(j.MessageID) > maxMessageIDLength {
		return errors.New("message_id too long")
	}
	if j.DocumentID == "" {
		return errors.New("document_id is required")
	}
	if j.FailedDocument.DocumentID != j.DocumentID {
		return fmt.Errorf("document_id %q does not match embedded document %q",
			j.DocumentID, j.FailedDocument.DocumentID)
	}
	return nil
}

func (j *CorrectionJob) validateErrors() error {
	if len(j.ValidationErrors) == 0 {
		return errors.New("validation_errors cannot be empty")
	}
	if len(j.ValidationErrors) > maxErrorListLength {
		return errors.New("validation_errors exceeds maximum length")
	}
	for _, ve := range j.ValidationErrors {
		if ve.Message == "" {
			return errors.New("validation error message cannot be empty")
		}
	}
	return nil
}

func (j *CorrectionJob) validateTimestamp() error {
	if !j.EnqueuedAt.IsZero() &&
		j.EnqueuedAt.Before(time.Date(minValidYear, 1, 1, 0, 0, 0, 0, time.UTC)) {
		return errors.New("enqueued_at too old")
	}
	return nil
}

// Marshal serializes the job for the wire.
func (j *CorrectionJob) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal correction job: %w", err)
	}
	return data, nil
}

// UnmarshalCorrectionJob decodes and validates a wire body. A failure here
// means the message can never be processed; the consumer acknowledges such
// bodies immediately instead of retrying them.
func UnmarshalCorrectionJob(data []byte) (CorrectionJob, error) {
	var job CorrectionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return CorrectionJob{}, fmt.Errorf("failed to unmarshal correction job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return CorrectionJob{}, fmt.Errorf("correction job validation failed: %w", err)
	}
	return job, nil
}

// GenerateMessageID generates a unique message ID. Each delivery of the same
// logical job shares one MessageID; uniqueness is per enqueue, not per
// delivery.
func GenerateMessageID() string {
	return fmt.Sprintf("msg-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8])
}

// GenerateCorrelationID generates a correlation ID used to tie together the
// log lines of one document's trip through the pipeline.
func GenerateCorrelationID() string {
	return fmt.Sprintf("corr-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8])
}
