package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is idempotent; every statement guards against re-application.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
    document_id TEXT PRIMARY KEY,
    payload     JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents (updated_at);
`

// RunMigrations applies the database schema. Safe to run repeatedly.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return WrapError(err, "run migrations")
	}
	return nil
}
