package outbound

import (
	"context"

	"docmender/internal/domain/entity"
)

// SchemaValidator is the opaque validation boundary. It is called both
// before enqueue (producer side) and after correction (consumer side); the
// pipeline never inspects the rule set itself. The error return covers
// validator infrastructure failures, not document violations, which travel
// in the result.
type SchemaValidator interface {
	Validate(ctx context.Context, doc entity.Document) (entity.ValidationResult, error)
}
