package inbound

import (
	"context"
	"time"

	"docmender/internal/domain/messaging"
)

// JobHandler processes one correction job delivery. A nil return causes the
// delivery to be acknowledged; any error feeds the consumer's retry or
// dead-letter decision. Handlers must preserve the job's document id on
// every side effect and must stay idempotent under duplicate delivery.
type JobHandler interface {
	HandleCorrectionJob(ctx context.Context, job messaging.CorrectionJob) error
}

// JobHandlerFunc adapts a function to the JobHandler interface.
type JobHandlerFunc func(ctx context.Context, job messaging.CorrectionJob) error

// HandleCorrectionJob implements JobHandler.
func (f JobHandlerFunc) HandleCorrectionJob(ctx context.Context, job messaging.CorrectionJob) error {
	return f(ctx, job)
}

// ConsumerStats tracks message consumption statistics.
type ConsumerStats struct {
	MessagesReceived     int64         `json:"messages_received"`
	MessagesAcked        int64         `json:"messages_acked"`
	MessagesRetried      int64         `json:"messages_retried"`
	MessagesDeadLettered int64         `json:"messages_dead_lettered"`
	LastProcessTime      time.Duration `json:"last_process_time"`
	ActiveSince          time.Time     `json:"active_since"`
}

// ConsumerHealthStatus reports the consumer's liveness for health endpoints
// and operator tooling.
type ConsumerHealthStatus struct {
	IsRunning       bool      `json:"is_running"`
	MessagesHandled int64     `json:"messages_handled"`
	ErrorCount      int64     `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// Consumer is the lifecycle interface of the queue consumer loop.
type Consumer interface {
	// Start begins the poll/dispatch loop. It returns once the loop is
	// running; processing continues until Stop.
	Start(ctx context.Context) error

	// Stop signals the loop to exit. In-flight messages finish their
	// current attempt; no new batch is fetched. Blocks until drained or the
	// context expires.
	Stop(ctx context.Context) error

	// Health returns the current health status.
	Health() ConsumerHealthStatus

	// GetStats returns consumption statistics.
	GetStats() ConsumerStats
}
