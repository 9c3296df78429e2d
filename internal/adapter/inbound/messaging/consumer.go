// Package messaging implements the queue consumer loop: it polls the
// correction queue, dispatches each delivery to the registered handler, and
// turns handler outcomes into acknowledge, delayed-retry, or dead-letter
// decisions.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docmender/internal/application/common/backoff"
	"docmender/internal/application/common/logging"
	"docmender/internal/application/common/slogger"
	domainerrors "docmender/internal/domain/errors/domain"
	"docmender/internal/domain/messaging"
	"docmender/internal/port/inbound"
	"docmender/internal/port/outbound"

	"golang.org/x/sync/errgroup"
)

const defaultJobProcessingTimeout = 30 * time.Second

// ConsumerConfig holds configuration for the queue consumer.
type ConsumerConfig struct {
	// MaxAttempts is the delivery count at which a still-failing job is
	// dead-lettered instead of retried.
	MaxAttempts int

	// BatchSize bounds in-flight work: the loop waits for a whole batch
	// before polling again.
	BatchSize int

	// LongPollWait is the receive-batch long-poll hint.
	LongPollWait time.Duration

	// VisibilityCeiling caps the computed retry delay.
	VisibilityCeiling time.Duration

	// JobTimeout bounds one handler invocation.
	JobTimeout time.Duration
}

// Validate performs validation of the consumer configuration.
func (c ConsumerConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.BatchSize < 1 {
		return errors.New("batch size must be at least 1")
	}
	if c.LongPollWait <= 0 {
		return errors.New("long poll wait must be positive")
	}
	if c.VisibilityCeiling <= 0 {
		return errors.New("visibility ceiling must be positive")
	}
	return nil
}

// QueueConsumer runs the poll/dispatch loop against the MessageQueue port.
//
// State machine per delivery: Received, Processing, then exactly one of
// Acknowledged, Retrying (visibility extended with backoff), or
// DeadLettered (acknowledged plus terminal record). The provider's delivery
// count is the attempt counter; the consumer never keeps its own.
type QueueConsumer struct {
	config      ConsumerConfig
	queue       outbound.MessageQueue
	deadLetters outbound.DeadLetterPublisher
	handler     inbound.JobHandler
	policy      *backoff.Policy
	logger      logging.ApplicationLogger

	mu      sync.RWMutex
	running bool
	stats   inbound.ConsumerStats
	health  inbound.ConsumerHealthStatus

	stop    chan struct{}
	drained chan struct{}
}

// NewQueueConsumer creates a consumer with validated configuration. The
// handler is passed in explicitly; there is no ambient registration.
func NewQueueConsumer(
	config ConsumerConfig,
	queue outbound.MessageQueue,
	deadLetters outbound.DeadLetterPublisher,
	handler inbound.JobHandler,
	policy *backoff.Policy,
) (*QueueConsumer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if queue == nil {
		return nil, errors.New("message queue cannot be nil")
	}
	if deadLetters == nil {
		return nil, errors.New("dead letter publisher cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("job handler cannot be nil")
	}
	if policy == nil {
		return nil, errors.New("backoff policy cannot be nil")
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobProcessingTimeout
	}

	return &QueueConsumer{
		config:      config,
		queue:       queue,
		deadLetters: deadLetters,
		handler:     handler,
		policy:      policy,
		logger:      slogger.WithComponent("queue-consumer"),
		stats:       inbound.ConsumerStats{ActiveSince: time.Now()},
	}, nil
}

// Start begins the poll/dispatch loop in a background goroutine. It returns
// once the loop is running.
func (c *QueueConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("consumer already running")
	}

	c.running = true
	c.health.IsRunning = true
	c.stats.ActiveSince = time.Now()
	c.stop = make(chan struct{})
	c.drained = make(chan struct{})

	go c.runLoop(ctx)

	c.logger.Info(ctx, "Consumer started", logging.Fields{
		"max_attempts": c.config.MaxAttempts,
		"batch_size":   c.config.BatchSize,
	})
	return nil
}

// Stop signals the loop to exit and blocks until the in-flight batch has
// drained or the context expires. Idempotent.
func (c *QueueConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.health.IsRunning = false
	stop := c.stop
	drained := c.drained
	c.mu.Unlock()

	close(stop)

	select {
	case <-drained:
		c.logger.Info(ctx, "Consumer drained and stopped", nil)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("consumer did not drain before deadline: %w", ctx.Err())
	}
}

// Health returns the current health status.
func (c *QueueConsumer) Health() inbound.ConsumerHealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// GetStats returns consumption statistics.
func (c *QueueConsumer) GetStats() inbound.ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// runLoop is the continuous poll cycle. It waits for every outcome of a
// batch before issuing the next poll, which bounds in-flight work to one
// batch and provides natural backpressure.
func (c *QueueConsumer) runLoop(ctx context.Context) {
	defer close(c.drained)

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		batch, err := c.queue.ReceiveBatch(ctx, c.config.BatchSize, c.config.LongPollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A single failed poll is not fatal.
			c.recordError(err)
			c.logger.ErrorWithError(ctx, err, "Poll failed, continuing", nil)
			continue
		}
		if len(batch) == 0 {
			continue
		}

		c.processBatch(ctx, batch)
	}
}

// processBatch dispatches every delivery concurrently and waits for all
// outcomes. One failing message never aborts its siblings; the per-message
// goroutine always returns nil to the group.
func (c *QueueConsumer) processBatch(ctx context.Context, batch []outbound.ReceivedMessage) {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, msg := range batch {
		group.Go(func() error {
			c.processMessage(groupCtx, msg)
			return nil
		})
	}

	// Goroutines never return errors, so this cannot fail.
	_ = group.Wait()
}

func (c *QueueConsumer) processMessage(ctx context.Context, msg outbound.ReceivedMessage) {
	start := time.Now()
	ctx = logging.WithCorrelationID(ctx, msg.Job.CorrelationID)

	c.mu.Lock()
	c.stats.MessagesReceived++
	c.health.MessagesHandled++
	c.health.LastMessageTime = start
	c.mu.Unlock()

	handlerCtx, cancel := context.WithTimeout(ctx, c.config.JobTimeout)
	err := c.handler.HandleCorrectionJob(handlerCtx, msg.Job)
	cancel()

	if err == nil {
		c.acknowledge(ctx, msg)
	} else if msg.DeliveryCount >= c.config.MaxAttempts || !domainerrors.IsRetryable(err) {
		c.deadLetter(ctx, msg, err)
	} else {
		c.retry(ctx, msg, err)
	}

	c.mu.Lock()
	c.stats.LastProcessTime = time.Since(start)
	c.mu.Unlock()
}

func (c *QueueConsumer) acknowledge(ctx context.Context, msg outbound.ReceivedMessage) {
	if err := c.queue.Acknowledge(ctx, msg.ReceiptHandle); err != nil {
		c.recordError(err)
		c.logger.ErrorWithError(ctx, err, "Failed to acknowledge message", logging.Fields{
			"document_id": msg.Job.DocumentID,
		})
		return
	}

	c.mu.Lock()
	c.stats.MessagesAcked++
	c.mu.Unlock()

	c.logger.Debug(ctx, "Message acknowledged", logging.Fields{
		"document_id":    msg.Job.DocumentID,
		"delivery_count": msg.DeliveryCount,
	})
}

// retry extends the message's invisibility by the backoff delay for the
// current delivery count, capped at the visibility ceiling. Extension is
// best-effort: on failure the original window expires and the provider
// redelivers naturally.
func (c *QueueConsumer) retry(ctx context.Context, msg outbound.ReceivedMessage, handlerErr error) {
	delay := c.policy.Delay(msg.DeliveryCount)
	if delay > c.config.VisibilityCeiling {
		delay = c.config.VisibilityCeiling
	}

	if err := c.queue.ExtendVisibility(ctx, msg.ReceiptHandle, delay); err != nil {
		c.recordError(err)
		c.logger.ErrorWithError(ctx, err, "Failed to extend visibility, relying on natural redelivery", logging.Fields{
			"document_id": msg.Job.DocumentID,
		})
	}

	c.mu.Lock()
	c.stats.MessagesRetried++
	c.mu.Unlock()

	c.logger.Warn(ctx, "Job failed, scheduled for retry", logging.Fields{
		"document_id":    msg.Job.DocumentID,
		"delivery_count": msg.DeliveryCount,
		"max_attempts":   c.config.MaxAttempts,
		"retry_delay":    delay.String(),
		"error":          handlerErr.Error(),
	})
}

// deadLetter removes the message permanently and emits the terminal
// failure record. This is the one path where a job is deliberately lost,
// so it logs full context: no further automatic recovery will occur.
func (c *QueueConsumer) deadLetter(ctx context.Context, msg outbound.ReceivedMessage, handlerErr error) {
	record, recordErr := messaging.NewDeadLetterRecord(msg.Job, handlerErr, msg.DeliveryCount, "correction")
	if recordErr != nil {
		c.recordError(recordErr)
		c.logger.ErrorWithError(ctx, recordErr, "Failed to build dead letter record", logging.Fields{
			"document_id": msg.Job.DocumentID,
		})
	} else if pubErr := c.deadLetters.PublishDeadLetter(ctx, record); pubErr != nil {
		c.recordError(pubErr)
		c.logger.ErrorWithError(ctx, pubErr, "Failed to publish dead letter record", logging.Fields{
			"document_id": msg.Job.DocumentID,
		})
	}

	if err := c.queue.Acknowledge(ctx, msg.ReceiptHandle); err != nil {
		c.recordError(err)
		c.logger.ErrorWithError(ctx, err, "Failed to acknowledge dead-lettered message", logging.Fields{
			"document_id": msg.Job.DocumentID,
		})
	}

	c.mu.Lock()
	c.stats.MessagesDeadLettered++
	c.mu.Unlock()

	c.logger.Error(ctx, "Job dead-lettered after exhausting attempts", logging.Fields{
		"document_id":       msg.Job.DocumentID,
		"message_id":        msg.Job.MessageID,
		"delivery_count":    msg.DeliveryCount,
		"max_attempts":      c.config.MaxAttempts,
		"last_error":        handlerErr.Error(),
		"validation_errors": len(msg.Job.ValidationErrors),
	})
}

func (c *QueueConsumer) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.ErrorCount++
	c.health.LastError = err.Error()
}
