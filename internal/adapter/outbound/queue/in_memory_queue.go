// Package queue provides an in-memory MessageQueue implementation with real
// visibility-timeout and redelivery semantics, for tests and local runs
// without a NATS server.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docmender/internal/application/common/slogger"
	"docmender/internal/domain/messaging"
	"docmender/internal/port/outbound"

	"github.com/google/uuid"
)

const drainPollInterval = 5 * time.Millisecond

// storedMessage is one logical message with its delivery bookkeeping.
type storedMessage struct {
	messageID     string
	job           messaging.CorrectionJob
	deliveryCount int

	// visibleAt gates delivery: zero (or past) means deliverable.
	visibleAt time.Time

	// inFlight is set between delivery and acknowledgment or visibility
	// expiry. receiptHandle is regenerated per delivery so stale handles
	// from a previous delivery are rejected.
	inFlight      bool
	receiptHandle string
}

// InMemoryQueue implements outbound.MessageQueue with at-least-once
// semantics: unacknowledged deliveries become visible again when their
// window lapses, with the delivery count incremented on redelivery.
type InMemoryQueue struct {
	visibilityTimeout time.Duration

	mu       sync.Mutex
	messages []*storedMessage
	handles  map[string]*storedMessage

	deadLetters []messaging.DeadLetterRecord

	// now is swappable for tests.
	now func() time.Time
}

// NewInMemoryQueue creates an in-memory queue with the given default
// visibility timeout.
func NewInMemoryQueue(visibilityTimeout time.Duration) *InMemoryQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &InMemoryQueue{
		visibilityTimeout: visibilityTimeout,
		handles:           make(map[string]*storedMessage),
		now:               time.Now,
	}
}

// SetClock replaces the queue's clock, letting tests advance visibility
// windows without sleeping.
func (q *InMemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Send enqueues a job, optionally delayed.
func (q *InMemoryQueue) Send(
	_ context.Context,
	job messaging.CorrectionJob,
	delay time.Duration,
) (string, error) {
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("refusing to enqueue invalid job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	msg := &storedMessage{
		messageID: uuid.New().String(),
		job:       job,
	}
	if delay > 0 {
		msg.visibleAt = q.now().Add(delay)
	}
	q.messages = append(q.messages, msg)

	return msg.messageID, nil
}

// ReceiveBatch returns up to maxMessages deliverable messages, long-polling
// up to waitTime when the queue is empty. Expired in-flight windows are
// reclaimed on every poll, which is what produces redelivery.
func (q *InMemoryQueue) ReceiveBatch(
	ctx context.Context,
	maxMessages int,
	waitTime time.Duration,
) ([]outbound.ReceivedMessage, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}

	deadline := time.Now().Add(waitTime)
	for {
		batch := q.collectDeliverable(maxMessages)
		if len(batch) > 0 {
			return batch, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(drainPollInterval):
		}
	}
}

func (q *InMemoryQueue) collectDeliverable(maxMessages int) []outbound.ReceivedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var batch []outbound.ReceivedMessage

	for _, msg := range q.messages {
		if len(batch) >= maxMessages {
			break
		}

		// Reclaim expired in-flight deliveries.
		if msg.inFlight && now.After(msg.visibleAt) {
			delete(q.handles, msg.receiptHandle)
			msg.inFlight = false
		}

		if msg.inFlight || now.Before(msg.visibleAt) {
			continue
		}

		msg.deliveryCount++
		msg.inFlight = true
		msg.visibleAt = now.Add(q.visibilityTimeout)
		msg.receiptHandle = uuid.New().String()
		q.handles[msg.receiptHandle] = msg

		batch = append(batch, outbound.ReceivedMessage{
			ReceiptHandle: msg.receiptHandle,
			Job:           msg.job,
			DeliveryCount: msg.deliveryCount,
		})
	}

	return batch
}

// Acknowledge permanently removes the delivery. Unknown or expired handles
// are a silent no-op.
func (q *InMemoryQueue) Acknowledge(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.handles[receiptHandle]
	if !ok {
		return nil
	}
	delete(q.handles, receiptHandle)

	for i, candidate := range q.messages {
		if candidate == msg {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			break
		}
	}
	return nil
}

// ExtendVisibility pushes the delivery's visibility window out to now +
// timeout. Unknown handles are a no-op: the original window will expire and
// redeliver naturally.
func (q *InMemoryQueue) ExtendVisibility(
	ctx context.Context,
	receiptHandle string,
	timeout time.Duration,
) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.handles[receiptHandle]
	if !ok {
		slogger.Debug(ctx, "Ignoring visibility extension for unknown handle", slogger.Fields{
			"receipt_handle": receiptHandle,
		})
		return nil
	}

	msg.visibleAt = q.now().Add(timeout)
	return nil
}

// Stats reports visible/in-flight/delayed message counts.
func (q *InMemoryQueue) Stats(_ context.Context) (outbound.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var stats outbound.QueueStats
	for _, msg := range q.messages {
		switch {
		case msg.inFlight && now.Before(msg.visibleAt):
			stats.InFlight++
		case now.Before(msg.visibleAt):
			stats.Delayed++
		default:
			stats.Visible++
		}
	}
	return stats, nil
}

// PublishDeadLetter records a terminal failure. Implements
// outbound.DeadLetterPublisher.
func (q *InMemoryQueue) PublishDeadLetter(
	_ context.Context,
	record messaging.DeadLetterRecord,
) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("refusing to record invalid dead letter: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, record)
	return nil
}

// DeadLetters returns a copy of the recorded terminal failures.
func (q *InMemoryQueue) DeadLetters() []messaging.DeadLetterRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	records := make([]messaging.DeadLetterRecord, len(q.deadLetters))
	copy(records, q.deadLetters)
	return records
}
