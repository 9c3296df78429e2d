package outbound

import (
	"context"

	"docmender/internal/domain/entity"
)

// DocumentRepository is the persistence boundary for documents. The pipeline
// only requires upsert-by-id semantics for correctness: re-processing the
// same document id after a duplicate delivery must converge on one stored
// record, never create a second. Bulk delete/insert serve the import
// workflow only.
type DocumentRepository interface {
	// FindByID returns the stored document, or ErrDocumentNotFound.
	FindByID(ctx context.Context, documentID string) (entity.Document, error)

	// UpsertByID inserts or replaces the record keyed on the document id,
	// last write wins.
	UpsertByID(ctx context.Context, doc entity.Document) error

	// InsertMany bulk-inserts a batch of documents.
	InsertMany(ctx context.Context, docs []entity.Document) error

	// DeleteAll removes every stored document.
	DeleteAll(ctx context.Context) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int64, error)
}
