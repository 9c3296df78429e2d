// Package entity holds the core domain types of the correction pipeline.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DocumentIDField is the payload field that carries the stable document
// identifier. It is immutable across every hop of the pipeline: the queue
// message, the correction engine, and the persisted record all key on it.
const DocumentIDField = "document_id"

// Document is the unit of work flowing through the pipeline. DocumentID is
// an opaque identifier; Payload holds the schema-defined fields, excluding
// the identifier itself.
type Document struct {
	DocumentID string         `json:"document_id"`
	Payload    map[string]any `json:"payload"`
}

// NewDocument creates a Document from an identifier and its payload fields.
// The payload map is copied so later mutation of the argument cannot leak
// into the entity.
func NewDocument(documentID string, payload map[string]any) (Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return Document{}, errors.New("document id cannot be empty")
	}

	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == DocumentIDField {
			continue
		}
		copied[k] = v
	}

	return Document{DocumentID: documentID, Payload: copied}, nil
}

// FromRaw builds a Document from a flat JSON object as produced by external
// sources: the document identifier is one field among the schema fields.
func FromRaw(raw map[string]any) (Document, error) {
	idValue, ok := raw[DocumentIDField]
	if !ok {
		return Document{}, fmt.Errorf("raw document is missing %q", DocumentIDField)
	}

	id, ok := idValue.(string)
	if !ok {
		return Document{}, fmt.Errorf("%q must be a string, got %T", DocumentIDField, idValue)
	}

	return NewDocument(id, raw)
}

// ParseRaw decodes a flat JSON document body and builds a Document from it.
func ParseRaw(data []byte) (Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("failed to decode document body: %w", err)
	}
	return FromRaw(raw)
}

// ToRaw flattens the document back into the external representation with the
// identifier merged into the field set. The returned map is a fresh copy.
func (d Document) ToRaw() map[string]any {
	raw := make(map[string]any, len(d.Payload)+1)
	for k, v := range d.Payload {
		raw[k] = v
	}
	raw[DocumentIDField] = d.DocumentID
	return raw
}

// Field returns a payload field by name.
func (d Document) Field(name string) (any, bool) {
	v, ok := d.Payload[name]
	return v, ok
}

// WithDocumentID returns a copy of the document carrying the given
// identifier. Used by the correction engine to restore identity on corrected
// output regardless of what the external corrector returned.
func (d Document) WithDocumentID(documentID string) Document {
	d.DocumentID = documentID
	return d
}

// Validate checks the structural invariants of the entity itself, not the
// schema rules, which live behind the validator port.
func (d Document) Validate() error {
	if strings.TrimSpace(d.DocumentID) == "" {
		return errors.New("document id cannot be empty")
	}
	if _, ok := d.Payload[DocumentIDField]; ok {
		return errors.New("payload must not shadow the document id field")
	}
	return nil
}

// ValidationError describes a single field-level schema violation. It is a
// pure value with no identity or lifecycle beyond one validation call.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationResult is the outcome of one schema validation call.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ErrorSummary joins the individual violations into a single line suitable
// for logs and dead-letter records.
func (r ValidationResult) ErrorSummary() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}
