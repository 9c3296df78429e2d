// Package normalization implements the opaque transform step applied to raw
// documents before validation. The rules are deliberately mechanical: the
// pipeline treats them as a black box and never branches on their content.
package normalization

import (
	"strings"

	"docmender/internal/domain/entity"
)

// Config holds configuration options for document normalization.
type Config struct {
	// TrimStrings controls whether leading/trailing whitespace is removed
	// from string fields.
	TrimStrings bool

	// DropEmptyStrings controls whether fields normalized to "" are removed
	// from the payload entirely.
	DropEmptyStrings bool

	// LowercaseFields maps field names whose string values are folded to
	// lower case (identifiers, enums with sloppy producers).
	LowercaseFields map[string]bool

	// Defaults maps field names to values inserted when the field is
	// missing from the payload.
	Defaults map[string]any
}

// DefaultConfig returns the default normalization configuration.
func DefaultConfig() *Config {
	return &Config{
		TrimStrings:      true,
		DropEmptyStrings: false,
		LowercaseFields:  map[string]bool{},
		Defaults:         map[string]any{},
	}
}

// DocumentNormalizer applies the configured transform rules to documents.
type DocumentNormalizer struct {
	config *Config
}

// NewDocumentNormalizer creates a normalizer with the given configuration,
// falling back to defaults when nil.
func NewDocumentNormalizer(config *Config) *DocumentNormalizer {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentNormalizer{config: config}
}

// Normalize transforms a raw flat document map into a Document. The document
// identifier is trimmed but otherwise passed through untouched: normalization
// must never rewrite identity.
func (n *DocumentNormalizer) Normalize(raw map[string]any) (entity.Document, error) {
	normalized := make(map[string]any, len(raw))

	for key, value := range raw {
		if key == entity.DocumentIDField {
			normalized[key] = n.normalizeID(value)
			continue
		}
		out, keep := n.normalizeValue(key, value)
		if keep {
			normalized[key] = out
		}
	}

	for key, def := range n.config.Defaults {
		if _, ok := normalized[key]; !ok {
			normalized[key] = def
		}
	}

	return entity.FromRaw(normalized)
}

func (n *DocumentNormalizer) normalizeID(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if n.config.TrimStrings {
		s = strings.TrimSpace(s)
	}
	return s
}

func (n *DocumentNormalizer) normalizeValue(key string, value any) (any, bool) {
	s, ok := value.(string)
	if !ok {
		return value, true
	}

	if n.config.TrimStrings {
		s = strings.TrimSpace(s)
	}
	if n.config.LowercaseFields[key] {
		s = strings.ToLower(s)
	}
	if n.config.DropEmptyStrings && s == "" {
		return nil, false
	}
	return s, true
}
