package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("worker.concurrency", 5)
	v.Set("worker.job_timeout", "2m")
	v.Set("database.host", "localhost")
	v.Set("database.port", 5432)
	v.Set("database.user", "docmender")
	v.Set("database.name", "docmender")
	v.Set("database.sslmode", "disable")
	v.Set("nats.url", "nats://localhost:4222")
	v.Set("queue.stream", "CORRECTIONS")
	v.Set("queue.subject", "corrections.job")
	v.Set("queue.dlq_subject", "corrections.dlq")
	v.Set("queue.durable_name", "correction-workers")
	v.Set("queue.max_deliver", 3)
	v.Set("queue.batch_size", 10)
	v.Set("queue.visibility_timeout", "30s")
	v.Set("queue.long_poll_wait", "5s")
	v.Set("queue.backoff_base", "5s")
	v.Set("queue.backoff_ceiling", "300s")
	v.Set("corrector.model", "gemini-2.0-flash")
	v.Set("corrector.timeout", "60s")
	v.Set("corrector.token_budgets", []int{1024, 4096, 8192})
	return v
}

func TestNew_ValidConfig(t *testing.T) {
	cfg := New(validViper())

	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
	assert.Equal(t, "corrections.job", cfg.Queue.Subject)
	assert.Equal(t, 3, cfg.Queue.MaxDeliver)
	assert.Equal(t, 5*time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, []int{1024, 4096, 8192}, cfg.Corrector.TokenBudgets)
}

func TestNew_PanicsOnInvalidConfig(t *testing.T) {
	v := validViper()
	v.Set("queue.max_deliver", 0)

	assert.Panics(t, func() { New(v) })
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:    "db.internal",
		Port:    5433,
		User:    "svc",
		Name:    "docs",
		SSLMode: "require",
	}
	assert.Equal(t, "host=db.internal port=5433 user=svc password= dbname=docs sslmode=require", cfg.DSN())
}

func TestQueueConfig_Validate(t *testing.T) {
	valid := QueueConfig{
		Subject:           "corrections.job",
		MaxDeliver:        3,
		BatchSize:         10,
		VisibilityTimeout: 30 * time.Second,
		LongPollWait:      5 * time.Second,
		BackoffBase:       5 * time.Second,
		BackoffCeiling:    300 * time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(q *QueueConfig)
		wantErr string
	}{
		{name: "missing subject", mutate: func(q *QueueConfig) { q.Subject = "" }, wantErr: "queue.subject"},
		{name: "zero max deliver", mutate: func(q *QueueConfig) { q.MaxDeliver = 0 }, wantErr: "max_deliver"},
		{name: "zero batch size", mutate: func(q *QueueConfig) { q.BatchSize = 0 }, wantErr: "batch_size"},
		{name: "zero visibility", mutate: func(q *QueueConfig) { q.VisibilityTimeout = 0 }, wantErr: "visibility_timeout"},
		{name: "zero long poll", mutate: func(q *QueueConfig) { q.LongPollWait = 0 }, wantErr: "long_poll_wait"},
		{name: "zero base", mutate: func(q *QueueConfig) { q.BackoffBase = 0 }, wantErr: "backoff_base"},
		{
			name:    "ceiling below base",
			mutate:  func(q *QueueConfig) { q.BackoffCeiling = time.Second },
			wantErr: "backoff_ceiling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			err := q.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCorrectorConfig_Validate(t *testing.T) {
	require.NoError(t, CorrectorConfig{TokenBudgets: []int{1024}}.Validate())
	require.NoError(t, CorrectorConfig{TokenBudgets: []int{1024, 4096, 8192}}.Validate())

	err := CorrectorConfig{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one budget")

	err = CorrectorConfig{TokenBudgets: []int{4096, 1024}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly ascending")

	err = CorrectorConfig{TokenBudgets: []int{1024, 1024}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly ascending")
}
