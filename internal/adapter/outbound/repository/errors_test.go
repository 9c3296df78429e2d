package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(pgx.ErrNoRows))
	assert.True(t, IsNotFoundError(fmt.Errorf("wrapped: %w", ErrDocumentNotFound)))
	assert.False(t, IsNotFoundError(errors.New("something else")))
	assert.False(t, IsNotFoundError(nil))
}

func TestIsConstraintViolationError(t *testing.T) {
	assert.True(t, IsConstraintViolationError(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsConstraintViolationError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsConstraintViolationError(&pgconn.PgError{Code: "42703"}))
	assert.False(t, IsConstraintViolationError(nil))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(&pgconn.PgError{Code: "08006"}))
	assert.True(t, IsConnectionError(&pgconn.PgError{Code: "57P01"}))
	assert.True(t, IsConnectionError(ErrConnectionFailed))
	assert.False(t, IsConnectionError(&pgconn.PgError{Code: "23505"}))
}

func TestWrapError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, WrapError(nil, "find document"))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		err := WrapError(pgx.ErrNoRows, "find document")
		require.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Contains(t, err.Error(), "find document")
	})

	t.Run("unique violation maps to constraint violation", func(t *testing.T) {
		err := WrapError(&pgconn.PgError{Code: "23505"}, "upsert document")
		require.ErrorIs(t, err, ErrConstraintViolation)
	})

	t.Run("unclassified errors pass through", func(t *testing.T) {
		cause := errors.New("disk on fire")
		err := WrapError(cause, "count documents")
		require.ErrorIs(t, err, cause)
	})
}
