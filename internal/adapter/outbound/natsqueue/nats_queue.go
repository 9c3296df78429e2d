// Package natsqueue implements the correction queue on NATS JetStream. A
// work-queue stream holds pending jobs, a durable pull consumer delivers
// them, and negative acks with delay drive the retry backoff.
package natsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"docmender/internal/application/common/slogger"
	"docmender/internal/config"
	"docmender/internal/domain/messaging"
	"docmender/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	natsConnectionTimeoutSeconds = 5

	// Jobs that sit unconsumed for this long are expired by the stream.
	streamMaxAgeHours = 24

	// Dead letter records are operator-facing and kept much longer than
	// pending work.
	deadLetterMaxAgeDays = 30

	deadLetterStreamSuffix = "_DLQ"

	// The provider must never stop redelivering on its own: the consumer
	// loop's attempt limit is the only dead-letter path. A provider-side
	// cap equal to the application's would swallow a job whose final
	// attempt died mid-flight, with no terminal record.
	unlimitedDeliveries = -1
)

// ConnectionHealthStatus reports the NATS connection state.
type ConnectionHealthStatus struct {
	Connected    bool      `json:"connected"`
	LastError    string    `json:"last_error,omitempty"`
	Reconnects   int       `json:"reconnects"`
	LastPingTime time.Time `json:"last_ping_time"`
}

// JetStreamQueue implements outbound.MessageQueue and
// outbound.DeadLetterPublisher on a JetStream work-queue stream.
//
// Receipt handles are opaque strings minted per delivery and mapped to the
// underlying *nats.Msg; acknowledgment and visibility extension resolve the
// handle back to the message. The handle map only holds messages currently
// in flight.
type JetStreamQueue struct {
	natsConfig  config.NATSConfig
	queueConfig config.QueueConfig

	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription

	mu             sync.RWMutex
	inFlight       map[string]*nats.Msg
	reconnectCount int
	lastError      error
	connectedAt    time.Time
}

// NewJetStreamQueue validates configuration and returns an unconnected
// queue. Call Connect before use.
func NewJetStreamQueue(natsCfg config.NATSConfig, queueCfg config.QueueConfig) (*JetStreamQueue, error) {
	if natsCfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(natsCfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if natsCfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if natsCfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}
	if err := queueCfg.Validate(); err != nil {
		return nil, err
	}

	return &JetStreamQueue{
		natsConfig:  natsCfg,
		queueConfig: queueCfg,
		inFlight:    make(map[string]*nats.Msg),
	}, nil
}

// Connect establishes the NATS connection, ensures the stream exists, and
// binds the durable pull consumer.
func (q *JetStreamQueue) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.MaxReconnects(q.natsConfig.MaxReconnects),
		nats.ReconnectWait(q.natsConfig.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			q.mu.Lock()
			q.reconnectCount++
			q.mu.Unlock()
			slogger.InfoNoCtx("Reconnected to NATS", nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			q.mu.Lock()
			q.lastError = err
			q.mu.Unlock()
			slogger.WarnNoCtx("NATS connection lost", slogger.Field("error", fmt.Sprintf("%v", err)))
		}),
	}

	conn, err := nats.Connect(q.natsConfig.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	q.conn = conn
	q.js = js
	q.connectedAt = time.Now()

	if err := q.ensureStreams(); err != nil {
		conn.Close()
		return err
	}

	sub, err := js.PullSubscribe(
		q.queueConfig.Subject,
		q.queueConfig.DurableName,
		nats.AckExplicit(),
		nats.MaxDeliver(unlimitedDeliveries),
		nats.AckWait(q.queueConfig.VisibilityTimeout),
		nats.ManualAck(),
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to bind pull consumer: %w", err)
	}
	q.sub = sub

	slogger.Info(ctx, "Connected to correction queue", slogger.Fields{
		"stream":  q.queueConfig.Stream,
		"subject": q.queueConfig.Subject,
		"durable": q.queueConfig.DurableName,
	})
	return nil
}

// Disconnect closes the NATS connection. In-flight messages redeliver once
// their ack window lapses.
func (q *JetStreamQueue) Disconnect() error {
	if q.conn != nil {
		q.conn.Close()
		q.conn = nil
		q.js = nil
		q.sub = nil
	}

	q.mu.Lock()
	q.inFlight = make(map[string]*nats.Msg)
	q.mu.Unlock()
	return nil
}

// ensureStreams creates the work-queue stream and the dead-letter stream if
// they do not exist. Dead letters live on their own limits-retention stream:
// they have no consumer of their own and must outlive the work stream's
// short MaxAge so operators can still find them.
func (q *JetStreamQueue) ensureStreams() error {
	for _, streamConfig := range []*nats.StreamConfig{q.workStreamConfig(), q.deadLetterStreamConfig()} {
		if _, err := q.js.AddStream(streamConfig); err != nil {
			if _, infoErr := q.js.StreamInfo(streamConfig.Name); infoErr == nil {
				continue
			}
			return fmt.Errorf("failed to create stream %s: %w", streamConfig.Name, err)
		}
	}
	return nil
}

func (q *JetStreamQueue) workStreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      q.queueConfig.Stream,
		Subjects:  []string{q.queueConfig.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    streamMaxAgeHours * time.Hour,
		Replicas:  1,
	}
}

func (q *JetStreamQueue) deadLetterStreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      q.queueConfig.Stream + deadLetterStreamSuffix,
		Subjects:  []string{q.queueConfig.DLQSubject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    deadLetterMaxAgeDays * 24 * time.Hour,
		Replicas:  1,
	}
}

// Send publishes a correction job. JetStream has no native delayed publish,
// so a positive delay is approximated with a timer before the publish; the
// delay is lost if the process dies first, which is acceptable because the
// job's document already sits in the failed-document store.
func (q *JetStreamQueue) Send(
	ctx context.Context,
	job messaging.CorrectionJob,
	delay time.Duration,
) (string, error) {
	if q.js == nil {
		return "", errors.New("not connected to NATS server")
	}
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("refusing to enqueue invalid job: %w", err)
	}

	data, err := job.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	ack, err := q.js.Publish(q.queueConfig.Subject, data, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to publish job: %w", err)
	}

	slogger.Debug(ctx, "Enqueued correction job", slogger.Fields{
		"message_id":  job.MessageID,
		"document_id": job.DocumentID,
		"sequence":    ack.Sequence,
	})
	return job.MessageID, nil
}

// ReceiveBatch fetches up to maxMessages jobs, waiting up to waitTime.
// Bodies that do not decode into a valid job are acknowledged immediately
// so a poison message cannot wedge the consumer.
func (q *JetStreamQueue) ReceiveBatch(
	ctx context.Context,
	maxMessages int,
	waitTime time.Duration,
) ([]outbound.ReceivedMessage, error) {
	if q.sub == nil {
		return nil, errors.New("not connected to NATS server")
	}
	if maxMessages < 1 {
		maxMessages = 1
	}

	msgs, err := q.sub.Fetch(maxMessages, nats.MaxWait(waitTime))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	batch := make([]outbound.ReceivedMessage, 0, len(msgs))
	for _, msg := range msgs {
		job, ok := decodeDelivery(ctx, msg.Subject, msg.Data, func() error { return msg.Ack() })
		if !ok {
			continue
		}

		deliveryCount := 1
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			deliveryCount = int(meta.NumDelivered)
		}

		handle := uuid.New().String()
		q.mu.Lock()
		q.inFlight[handle] = msg
		q.mu.Unlock()

		batch = append(batch, outbound.ReceivedMessage{
			ReceiptHandle: handle,
			Job:           job,
			DeliveryCount: deliveryCount,
		})
	}

	return batch, nil
}

// decodeDelivery decodes one raw queue body. A body that does not decode
// into a valid job is acknowledged through the given ack func and dropped:
// no amount of redelivery fixes a parse error.
func decodeDelivery(
	ctx context.Context,
	subject string,
	data []byte,
	ack func() error,
) (messaging.CorrectionJob, bool) {
	job, err := messaging.UnmarshalCorrectionJob(data)
	if err == nil {
		return job, true
	}

	slogger.ErrorWithError(ctx, err, "Discarding malformed queue message", slogger.Fields{
		"subject": subject,
		"bytes":   len(data),
	})
	if ackErr := ack(); ackErr != nil {
		slogger.ErrorWithError(ctx, ackErr, "Failed to ack malformed message", nil)
	}
	return messaging.CorrectionJob{}, false
}

// Acknowledge permanently removes the delivery. Unknown handles are a
// no-op so that ack after a visibility lapse stays harmless.
func (q *JetStreamQueue) Acknowledge(_ context.Context, receiptHandle string) error {
	msg, ok := q.takeHandle(receiptHandle)
	if !ok {
		return nil
	}
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// ExtendVisibility schedules redelivery after the given timeout via a
// delayed negative ack. The handle is consumed: the next delivery mints a
// fresh one with an incremented delivery count.
func (q *JetStreamQueue) ExtendVisibility(
	ctx context.Context,
	receiptHandle string,
	timeout time.Duration,
) error {
	msg, ok := q.takeHandle(receiptHandle)
	if !ok {
		slogger.Debug(ctx, "Ignoring visibility extension for unknown handle", slogger.Fields{
			"receipt_handle": receiptHandle,
		})
		return nil
	}
	if err := msg.NakWithDelay(timeout); err != nil {
		return fmt.Errorf("failed to delay redelivery: %w", err)
	}
	return nil
}

func (q *JetStreamQueue) takeHandle(receiptHandle string) (*nats.Msg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.inFlight[receiptHandle]
	if ok {
		delete(q.inFlight, receiptHandle)
	}
	return msg, ok
}

// Stats reports queue depth from the durable consumer. JetStream folds
// delayed redeliveries into the ack-pending count, so Delayed is always
// zero here.
func (q *JetStreamQueue) Stats(_ context.Context) (outbound.QueueStats, error) {
	if q.js == nil {
		return outbound.QueueStats{}, errors.New("not connected to NATS server")
	}

	info, err := q.js.ConsumerInfo(q.queueConfig.Stream, q.queueConfig.DurableName)
	if err != nil {
		return outbound.QueueStats{}, fmt.Errorf("failed to read consumer info: %w", err)
	}

	return outbound.QueueStats{
		Visible:  int64(info.NumPending),
		InFlight: int64(info.NumAckPending),
		Delayed:  0,
	}, nil
}

// PublishDeadLetter publishes a terminal failure record to the DLQ subject.
func (q *JetStreamQueue) PublishDeadLetter(
	ctx context.Context,
	record messaging.DeadLetterRecord,
) error {
	if q.js == nil {
		return errors.New("not connected to NATS server")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid dead letter: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter record: %w", err)
	}

	if _, err := q.js.Publish(q.queueConfig.DLQSubject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}

	slogger.Info(ctx, "Published dead letter record", slogger.Fields{
		"record_id":    record.RecordID,
		"document_id":  record.OriginalJob.DocumentID,
		"failure_type": string(record.FailureType),
	})
	return nil
}

// GetConnectionHealth returns the current connection state.
func (q *JetStreamQueue) GetConnectionHealth() ConnectionHealthStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()

	status := ConnectionHealthStatus{
		Connected:    q.conn != nil && q.conn.IsConnected(),
		Reconnects:   q.reconnectCount,
		LastPingTime: time.Now(),
	}
	if q.lastError != nil {
		status.LastError = q.lastError.Error()
	}
	return status
}
