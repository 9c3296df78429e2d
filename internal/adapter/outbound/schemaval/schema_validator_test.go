package schemaval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"docmender/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaYAML = `
$schema: "https://json-schema.org/draft/2020-12/schema"
type: object
required:
  - document_id
  - title
  - amount
properties:
  document_id:
    type: string
    minLength: 1
  title:
    type: string
    minLength: 3
  amount:
    type: number
    minimum: 0
additionalProperties: true
`

func newTestValidator(t *testing.T) *JSONSchemaValidator {
	t.Helper()
	v, err := NewFromYAML([]byte(testSchemaYAML))
	require.NoError(t, err)
	return v
}

func mustDocument(t *testing.T, id string, payload map[string]any) entity.Document {
	t.Helper()
	doc, err := entity.NewDocument(id, payload)
	require.NoError(t, err)
	return doc
}

func TestNewFromYAML_RejectsBadInput(t *testing.T) {
	t.Run("invalid YAML", func(t *testing.T) {
		_, err := NewFromYAML([]byte("{{not yaml"))
		require.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := NewFromYAML([]byte(""))
		require.Error(t, err)
	})

	t.Run("invalid schema", func(t *testing.T) {
		_, err := NewFromYAML([]byte(`{"type": 12}`))
		require.Error(t, err)
	})
}

func TestNewFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchemaYAML), 0o600))

	v, err := NewFromYAMLFile(path)
	require.NoError(t, err)
	require.NotNil(t, v)

	_, err = NewFromYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_ValidDocument(t *testing.T) {
	v := newTestValidator(t)

	doc := mustDocument(t, "doc-1", map[string]any{
		"title":  "quarterly report",
		"amount": 120.5,
	})

	result, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	v := newTestValidator(t)

	doc := mustDocument(t, "doc-1", map[string]any{
		"title":  "ab",
		"amount": "not a number",
	})

	result, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)

	fields := make(map[string]bool)
	for _, ve := range result.Errors {
		fields[ve.Field] = true
		assert.NotEmpty(t, ve.Message)
	}
	assert.True(t, fields["title"], "expected a violation on title, got %v", result.Errors)
	assert.True(t, fields["amount"], "expected a violation on amount, got %v", result.Errors)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	v := newTestValidator(t)

	doc := mustDocument(t, "doc-1", map[string]any{
		"title": "quarterly report",
	})

	result, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
}

func TestValidate_ExtraFieldsAllowed(t *testing.T) {
	v := newTestValidator(t)

	doc := mustDocument(t, "doc-1", map[string]any{
		"title":  "quarterly report",
		"amount": 10,
		"notes":  "anything goes here",
	})

	result, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
