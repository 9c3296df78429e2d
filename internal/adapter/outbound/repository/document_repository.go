// Package repository implements document persistence on PostgreSQL. The
// corrected-document store is a single JSONB table keyed on the document id.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docmender/internal/domain/entity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLDocumentRepository implements the DocumentRepository interface.
//
// Storage model: the document id lives in its own column for keyed access,
// the remaining payload fields are stored as one JSONB value. UpsertByID is
// last-write-wins on the id column, which is what makes duplicate queue
// deliveries converge on a single record.
type PostgreSQLDocumentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLDocumentRepository creates a new PostgreSQL document repository.
func NewPostgreSQLDocumentRepository(pool *pgxpool.Pool) *PostgreSQLDocumentRepository {
	return &PostgreSQLDocumentRepository{pool: pool}
}

// FindByID returns the stored document, or ErrDocumentNotFound.
func (r *PostgreSQLDocumentRepository) FindByID(
	ctx context.Context,
	documentID string,
) (entity.Document, error) {
	if documentID == "" {
		return entity.Document{}, fmt.Errorf("find document: %w", ErrDocumentNotFound)
	}

	query := `
		SELECT document_id, payload
		FROM documents
		WHERE document_id = $1`

	var storedID string
	var payloadJSON []byte

	err := r.pool.QueryRow(ctx, query, documentID).Scan(&storedID, &payloadJSON)
	if err != nil {
		return entity.Document{}, WrapError(err, "find document")
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return entity.Document{}, fmt.Errorf("find document: corrupt payload for %s: %w", documentID, err)
	}

	doc, err := entity.NewDocument(storedID, payload)
	if err != nil {
		return entity.Document{}, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// UpsertByID inserts or replaces the record keyed on the document id.
func (r *PostgreSQLDocumentRepository) UpsertByID(ctx context.Context, doc entity.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	payloadJSON, err := json.Marshal(doc.Payload)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	query := `
		INSERT INTO documents (document_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, doc.DocumentID, payloadJSON, time.Now().UTC()); err != nil {
		return WrapError(err, "upsert document")
	}
	return nil
}

// InsertMany bulk-inserts documents in a single batch round trip.
func (r *PostgreSQLDocumentRepository) InsertMany(ctx context.Context, docs []entity.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `
		INSERT INTO documents (document_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
		payloadJSON, err := json.Marshal(doc.Payload)
		if err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
		batch.Queue(query, doc.DocumentID, payloadJSON, now)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range docs {
		if _, err := results.Exec(); err != nil {
			return WrapError(err, "insert documents")
		}
	}
	return nil
}

// DeleteAll removes every stored document.
func (r *PostgreSQLDocumentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM documents`); err != nil {
		return WrapError(err, "delete documents")
	}
	return nil
}

// Count returns the number of stored documents.
func (r *PostgreSQLDocumentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, WrapError(err, "count documents")
	}
	return count, nil
}
