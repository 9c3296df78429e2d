package logging

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string) ApplicationLogger {
	t.Helper()
	logger, err := NewApplicationLogger(Config{Level: level, Format: "json", Output: "buffer"})
	require.NoError(t, err)
	return logger
}

func lastEntry(t *testing.T, logger ApplicationLogger) LogEntry {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(Buffer(logger)), "\n")
	require.NotEmpty(t, lines)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNewApplicationLogger_Validation(t *testing.T) {
	_, err := NewApplicationLogger(Config{Level: "verbose"})
	require.Error(t, err)

	_, err = NewApplicationLogger(Config{Format: "xml"})
	require.Error(t, err)

	_, err = NewApplicationLogger(Config{})
	require.NoError(t, err)
}

func TestLogger_EmitsStructuredEntry(t *testing.T) {
	logger := newBufferLogger(t, "info")

	logger.Info(context.Background(), "document persisted", Fields{"document_id": "doc-1"})

	entry := lastEntry(t, logger)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "document persisted", entry.Message)
	assert.Equal(t, "doc-1", entry.Metadata["document_id"])
	assert.NotEmpty(t, entry.Timestamp)
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger := newBufferLogger(t, "warn")

	logger.Debug(context.Background(), "debug line", nil)
	logger.Info(context.Background(), "info line", nil)
	logger.Warn(context.Background(), "warn line", nil)

	output := Buffer(logger)
	assert.NotContains(t, output, "debug line")
	assert.NotContains(t, output, "info line")
	assert.Contains(t, output, "warn line")
}

func TestLogger_CorrelationIDPropagation(t *testing.T) {
	logger := newBufferLogger(t, "info")
	ctx := WithCorrelationID(context.Background(), "corr-42")

	logger.Info(ctx, "with correlation", nil)

	entry := lastEntry(t, logger)
	assert.Equal(t, "corr-42", entry.CorrelationID)
}

func TestLogger_WithComponent(t *testing.T) {
	logger := newBufferLogger(t, "info").WithComponent("consumer")

	logger.Info(context.Background(), "component line", nil)

	entry := lastEntry(t, logger)
	assert.Equal(t, "consumer", entry.Component)
}

func TestLogger_ErrorWithError(t *testing.T) {
	logger := newBufferLogger(t, "error")

	logger.ErrorWithError(context.Background(), assert.AnError, "operation failed", nil)

	entry := lastEntry(t, logger)
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, assert.AnError.Error(), entry.Error)
}

func TestLogger_LogPerformance(t *testing.T) {
	logger := newBufferLogger(t, "info")

	logger.LogPerformance(context.Background(), "correction", 1500*time.Millisecond, Fields{"budget": 1024})

	entry := lastEntry(t, logger)
	assert.Equal(t, "correction", entry.Operation)
	assert.Equal(t, "1.5s", entry.Duration)
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx := EnsureCorrelationID(context.Background())
	first := CorrelationIDFromContext(ctx)
	require.NotEmpty(t, first)

	// Idempotent: an existing ID is kept.
	assert.Equal(t, first, CorrelationIDFromContext(EnsureCorrelationID(ctx)))
}
