package natsqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"docmender/internal/config"
	"docmender/internal/domain/entity"
	"docmender/internal/domain/messaging"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNATSConfig() config.NATSConfig {
	return config.NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: 5,
		ReconnectWait: 2 * time.Second,
	}
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Stream:            "CORRECTIONS",
		Subject:           "corrections.job",
		DLQSubject:        "corrections.dlq",
		DurableName:       "correction-workers",
		MaxDeliver:        3,
		BatchSize:         10,
		VisibilityTimeout: 30 * time.Second,
		LongPollWait:      5 * time.Second,
		BackoffBase:       5 * time.Second,
		BackoffCeiling:    300 * time.Second,
	}
}

func TestNewJetStreamQueue_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *config.NATSConfig, q *config.QueueConfig)
	}{
		{"empty URL", func(n *config.NATSConfig, _ *config.QueueConfig) { n.URL = "" }},
		{"wrong scheme", func(n *config.NATSConfig, _ *config.QueueConfig) { n.URL = "http://localhost:4222" }},
		{"negative reconnects", func(n *config.NATSConfig, _ *config.QueueConfig) { n.MaxReconnects = -1 }},
		{"negative reconnect wait", func(n *config.NATSConfig, _ *config.QueueConfig) { n.ReconnectWait = -time.Second }},
		{"invalid queue config", func(_ *config.NATSConfig, q *config.QueueConfig) { q.Subject = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			natsCfg := testNATSConfig()
			queueCfg := testQueueConfig()
			tt.mutate(&natsCfg, &queueCfg)

			_, err := NewJetStreamQueue(natsCfg, queueCfg)
			require.Error(t, err)
		})
	}

	queue, err := NewJetStreamQueue(testNATSConfig(), testQueueConfig())
	require.NoError(t, err)
	require.NotNil(t, queue)
}

// The work stream holds only pending jobs; dead letters get their own
// limits-retention stream so terminal records outlive the work stream's
// short expiry and are never competed away by the work-queue policy.
func TestStreamConfigs_SeparateDeadLetterRetention(t *testing.T) {
	queue, err := NewJetStreamQueue(testNATSConfig(), testQueueConfig())
	require.NoError(t, err)

	work := queue.workStreamConfig()
	assert.Equal(t, "CORRECTIONS", work.Name)
	assert.Equal(t, []string{"corrections.job"}, work.Subjects)
	assert.NotContains(t, work.Subjects, "corrections.dlq")
	assert.Equal(t, nats.WorkQueuePolicy, work.Retention)

	dlq := queue.deadLetterStreamConfig()
	assert.Equal(t, "CORRECTIONS_DLQ", dlq.Name)
	assert.Equal(t, []string{"corrections.dlq"}, dlq.Subjects)
	assert.Equal(t, nats.LimitsPolicy, dlq.Retention)
	assert.Greater(t, dlq.MaxAge, work.MaxAge, "dead letters must outlive pending work")
}

func wireJob(t *testing.T) []byte {
	t.Helper()
	doc, err := entity.NewDocument("doc-1", map[string]any{"title": "x"})
	require.NoError(t, err)
	job, err := messaging.NewCorrectionJob(doc, []entity.ValidationError{
		{Field: "amount", Message: "must be a number"},
	})
	require.NoError(t, err)
	data, err := job.Marshal()
	require.NoError(t, err)
	return data
}

func TestDecodeDelivery_ValidBody(t *testing.T) {
	acks := 0
	job, ok := decodeDelivery(context.Background(), "corrections.job", wireJob(t), func() error {
		acks++
		return nil
	})

	require.True(t, ok)
	assert.Equal(t, "doc-1", job.DocumentID)
	assert.Zero(t, acks, "a valid body must not be acknowledged on receipt")
}

// A malformed body is acknowledged immediately and dropped rather than
// retried.
func TestDecodeDelivery_MalformedBodyAckedAndDropped(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{not json`),
		[]byte(`{"message_id":""}`), // decodes but fails job validation
		{},
	}

	for _, body := range bodies {
		acks := 0
		_, ok := decodeDelivery(context.Background(), "corrections.job", body, func() error {
			acks++
			return nil
		})

		assert.False(t, ok, "body %q must be dropped", body)
		assert.Equal(t, 1, acks, "body %q must be acknowledged exactly once", body)
	}
}

func TestDecodeDelivery_AckFailureStillDrops(t *testing.T) {
	_, ok := decodeDelivery(context.Background(), "corrections.job", []byte(`{broken`), func() error {
		return errors.New("ack window lapsed")
	})
	assert.False(t, ok)
}

func TestJetStreamQueue_OperationsRequireConnection(t *testing.T) {
	queue, err := NewJetStreamQueue(testNATSConfig(), testQueueConfig())
	require.NoError(t, err)

	ctx := context.Background()

	doc, err := entity.NewDocument("doc-1", map[string]any{"title": "x"})
	require.NoError(t, err)
	job, err := messaging.NewCorrectionJob(doc, []entity.ValidationError{
		{Field: "amount", Message: "must be a number"},
	})
	require.NoError(t, err)

	_, err = queue.Send(ctx, job, 0)
	require.Error(t, err)

	_, err = queue.ReceiveBatch(ctx, 10, time.Millisecond)
	require.Error(t, err)

	_, err = queue.Stats(ctx)
	require.Error(t, err)

	record, err := messaging.NewDeadLetterRecord(job, errors.New("upstream corrector refused"), 3, "correction")
	require.NoError(t, err)
	require.Error(t, queue.PublishDeadLetter(ctx, record))

	assert.False(t, queue.GetConnectionHealth().Connected)
}
