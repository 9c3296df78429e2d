package messaging

import (
	"testing"
	"time"

	"docmender/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invalidDocument(t *testing.T) entity.Document {
	t.Helper()
	doc, err := entity.NewDocument("doc-1", map[string]any{"title": "x"})
	require.NoError(t, err)
	return doc
}

func someViolations() []entity.ValidationError {
	return []entity.ValidationError{{Field: "amount", Message: "required field missing"}}
}

func TestNewCorrectionJob(t *testing.T) {
	doc := invalidDocument(t)

	job, err := NewCorrectionJob(doc, someViolations())
	require.NoError(t, err)

	assert.NotEmpty(t, job.MessageID)
	assert.NotEmpty(t, job.CorrelationID)
	assert.Equal(t, "doc-1", job.DocumentID)
	assert.Equal(t, doc, job.FailedDocument)
	assert.Len(t, job.ValidationErrors, 1)
	assert.WithinDuration(t, time.Now().UTC(), job.EnqueuedAt, 5*time.Second)
	require.NoError(t, job.Validate())
}

func TestNewCorrectionJob_RequiresViolations(t *testing.T) {
	_, err := NewCorrectionJob(invalidDocument(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one validation error")
}

func TestNewCorrectionJob_RejectsInvalidDocument(t *testing.T) {
	_, err := NewCorrectionJob(entity.Document{}, someViolations())
	require.Error(t, err)
}

func TestCorrectionJob_Validate(t *testing.T) {
	valid, err := NewCorrectionJob(invalidDocument(t), someViolations())
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(j *CorrectionJob)
		wantErr string
	}{
		{
			name:    "missing message id",
			mutate:  func(j *CorrectionJob) { j.MessageID = "" },
			wantErr: "message_id is required",
		},
		{
			name:    "missing document id",
			mutate:  func(j *CorrectionJob) { j.DocumentID = "" },
			wantErr: "document_id is required",
		},
		{
			name:    "document id mismatch",
			mutate:  func(j *CorrectionJob) { j.DocumentID = "doc-other" },
			wantErr: "does not match embedded document",
		},
		{
			name:    "empty violation message",
			mutate:  func(j *CorrectionJob) { j.ValidationErrors = []entity.ValidationError{{Field: "x"}} },
			wantErr: "message cannot be empty",
		},
		{
			name: "ancient timestamp",
			mutate: func(j *CorrectionJob) {
				j.EnqueuedAt = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
			},
			wantErr: "enqueued_at too old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := valid
			tt.mutate(&job)
			err := job.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCorrectionJob_WireRoundTrip(t *testing.T) {
	job, err := NewCorrectionJob(invalidDocument(t), someViolations())
	require.NoError(t, err)

	data, err := job.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalCorrectionJob(data)
	require.NoError(t, err)
	assert.Equal(t, job.MessageID, decoded.MessageID)
	assert.Equal(t, job.DocumentID, decoded.DocumentID)
	assert.Equal(t, job.ValidationErrors, decoded.ValidationErrors)
}

func TestUnmarshalCorrectionJob_RejectsGarbage(t *testing.T) {
	_, err := UnmarshalCorrectionJob([]byte(`{broken`))
	require.Error(t, err)

	// Well-formed JSON that fails validation is equally unprocessable.
	_, err = UnmarshalCorrectionJob([]byte(`{"message_id":""}`))
	require.Error(t, err)
}

func TestGenerateIDs_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateMessageID(), GenerateMessageID())
	assert.NotEqual(t, GenerateCorrelationID(), GenerateCorrelationID())
	assert.NotEqual(t, GenerateDeadLetterID(), GenerateDeadLetterID())
}
