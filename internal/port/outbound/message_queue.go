package outbound

import (
	"context"
	"time"

	"docmender/internal/domain/messaging"
)

// ReceivedMessage is one delivery handed to the consumer by the queue.
type ReceivedMessage struct {
	// ReceiptHandle identifies this delivery for Acknowledge and
	// ExtendVisibility. It is opaque and valid only until the visibility
	// window lapses.
	ReceiptHandle string

	// Job is the decoded message body.
	Job messaging.CorrectionJob

	// DeliveryCount is the provider-maintained count of how many times this
	// message has been delivered, including this delivery. It is the source
	// of truth for the retry/dead-letter decision; the application keeps no
	// counter of its own.
	DeliveryCount int
}

// QueueStats is an observability snapshot; nothing may depend on it for
// correctness.
type QueueStats struct {
	Visible  int64 `json:"visible"`
	InFlight int64 `json:"in_flight"`
	Delayed  int64 `json:"delayed"`
}

// MessageQueue abstracts the durable at-least-once delivery substrate.
//
// Delivery contract: a received message is invisible to other receivers for
// a visibility window; if it is not acknowledged before the window lapses it
// becomes visible again and is redelivered with DeliveryCount incremented.
// No ordering is guaranteed across messages.
//
// Implementations must acknowledge and drop malformed bodies internally
// rather than surfacing them from ReceiveBatch: no amount of redelivery
// fixes a parse error.
type MessageQueue interface {
	// Send enqueues a job, optionally delayed. Returns the provider message
	// ID. Fails with a transport error when the provider is unavailable;
	// callers surface that rather than silently dropping the job.
	Send(ctx context.Context, job messaging.CorrectionJob, delay time.Duration) (string, error)

	// ReceiveBatch long-polls for up to maxMessages messages, blocking at
	// most waitTime. An empty result on timeout is normal, not an error.
	ReceiveBatch(ctx context.Context, maxMessages int, waitTime time.Duration) ([]ReceivedMessage, error)

	// Acknowledge permanently removes a delivery. Idempotent: acknowledging
	// an already-removed or expired handle is a no-op, never a crash.
	Acknowledge(ctx context.Context, receiptHandle string) error

	// ExtendVisibility keeps a delivery invisible for the given duration.
	// Best-effort: on failure the original visibility window still expires
	// and triggers a natural redelivery.
	ExtendVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error

	// Stats reports a point-in-time queue depth snapshot.
	Stats(ctx context.Context) (QueueStats, error)
}

// DeadLetterPublisher records terminal failures somewhere an operator can
// find them after the job itself has been removed from the work queue.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, record messaging.DeadLetterRecord) error
}
