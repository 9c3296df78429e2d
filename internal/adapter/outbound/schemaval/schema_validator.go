// Package schemaval implements the SchemaValidator port with JSON Schema.
// Schemas are authored in YAML for readability, decoded to a plain document
// tree, and compiled once at startup.
package schemaval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"docmender/internal/domain/entity"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const schemaResourceName = "document.schema.json"

// JSONSchemaValidator validates documents against a compiled JSON Schema.
// The compiled schema is immutable, so one validator is safe for concurrent
// use across the worker pool.
type JSONSchemaValidator struct {
	schema *jsonschema.Schema
}

// NewFromYAMLFile loads and compiles a YAML-authored JSON Schema.
func NewFromYAMLFile(path string) (*JSONSchemaValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return NewFromYAML(data)
}

// NewFromYAML compiles a YAML-authored JSON Schema from raw bytes.
func NewFromYAML(data []byte) (*JSONSchemaValidator, error) {
	var schemaDoc any
	if err := yaml.Unmarshal(data, &schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to decode schema YAML: %w", err)
	}
	if schemaDoc == nil {
		return nil, errors.New("schema document is empty")
	}

	// Round-trip through JSON so numbers and nested maps take the exact
	// shapes the compiler expects.
	normalized, err := roundTripJSON(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize schema document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResourceName, normalized); err != nil {
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}

	schema, err := compiler.Compile(schemaResourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &JSONSchemaValidator{schema: schema}, nil
}

// Validate checks the document against the schema. Violations are returned
// in the result; the error covers validator failures only.
func (v *JSONSchemaValidator) Validate(
	_ context.Context,
	doc entity.Document,
) (entity.ValidationResult, error) {
	instance, err := roundTripJSON(doc.ToRaw())
	if err != nil {
		return entity.ValidationResult{}, fmt.Errorf("failed to encode document for validation: %w", err)
	}

	err = v.schema.Validate(instance)
	if err == nil {
		return entity.ValidationResult{Valid: true}, nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return entity.ValidationResult{}, fmt.Errorf("schema validation failed: %w", err)
	}

	return entity.ValidationResult{
		Valid:  false,
		Errors: collectViolations(validationErr),
	}, nil
}

// collectViolations flattens the validation error tree into per-field
// violations. Only leaves carry actionable detail; interior nodes just
// restate that children failed.
func collectViolations(root *jsonschema.ValidationError) []entity.ValidationError {
	var violations []entity.ValidationError

	var walk func(ve *jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) == 0 {
			violations = append(violations, entity.ValidationError{
				Field:   fieldPath(ve.InstanceLocation),
				Message: ve.Error(),
			})
			return
		}
		for _, cause := range ve.Causes {
			walk(cause)
		}
	}
	walk(root)

	return violations
}

func fieldPath(location []string) string {
	if len(location) == 0 {
		return "(document)"
	}
	return strings.Join(location, ".")
}

// roundTripJSON re-encodes a value through JSON so the validator sees
// canonical JSON types regardless of how the value was produced.
func roundTripJSON(value any) (any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
}
