package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docmender/internal/adapter/inbound/messaging"
	"docmender/internal/adapter/outbound/gemini"
	"docmender/internal/adapter/outbound/natsqueue"
	"docmender/internal/adapter/outbound/repository"
	"docmender/internal/adapter/outbound/schemaval"
	"docmender/internal/application/common/backoff"
	"docmender/internal/application/common/slogger"
	"docmender/internal/application/service"
	"docmender/internal/config"
	"docmender/internal/port/inbound"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the correction worker service",
		Long: `Start the worker service that consumes correction jobs from the queue.

The worker service:
- Pulls correction jobs from NATS JetStream in batches
- Invokes the generative corrector with an escalating token budget
- Re-validates corrected documents before persisting them
- Retries failed jobs with exponential backoff, dead-lettering after
  the configured maximum delivery attempts

Configuration is loaded from config files and environment variables.`,
		Run: func(_ *cobra.Command, _ []string) {
			runWorkerService()
		},
	}
}

func init() {
	rootCmd.AddCommand(newWorkerCmd())
}

func runWorkerService() {
	slogger.InfoNoCtx("Starting correction worker", slogger.Fields{
		"batch_size":   cfg.Queue.BatchSize,
		"max_attempts": cfg.Queue.MaxDeliver,
	})

	ctx := context.Background()

	dbPool, err := repository.NewDatabaseConnection(ctx, cfg.Database)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return
	}
	defer dbPool.Close()

	queue, err := connectQueue(ctx, cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to correction queue", slogger.Fields{"error": err.Error()})
		return
	}
	defer func() { _ = queue.Disconnect() }()

	consumer, err := createConsumer(cfg, dbPool, queue)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create consumer", slogger.Fields{"error": err.Error()})
		return
	}

	if err := consumer.Start(ctx); err != nil {
		slogger.ErrorNoCtx("Failed to start consumer", slogger.Fields{"error": err.Error()})
		return
	}
	slogger.InfoNoCtx("Correction worker started", nil)

	waitForShutdownAndStop(consumer)
}

func connectQueue(ctx context.Context, cfg *config.Config) (*natsqueue.JetStreamQueue, error) {
	queue, err := natsqueue.NewJetStreamQueue(cfg.NATS, cfg.Queue)
	if err != nil {
		return nil, err
	}
	if err := queue.Connect(ctx); err != nil {
		return nil, err
	}
	return queue, nil
}

// createConsumer wires the full consumer-side dependency graph: validator,
// corrector, engine, pipeline handler, and the queue consumer loop.
func createConsumer(
	cfg *config.Config,
	dbPool *pgxpool.Pool,
	queue *natsqueue.JetStreamQueue,
) (inbound.Consumer, error) {
	validator, err := schemaval.NewFromYAMLFile(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}

	corrector, err := gemini.NewClientFromEnv(&gemini.ClientConfig{
		APIKey:  cfg.Corrector.APIKey,
		BaseURL: cfg.Corrector.BaseURL,
		Model:   cfg.Corrector.Model,
		Timeout: cfg.Corrector.Timeout,
	})
	if err != nil {
		return nil, err
	}

	engine, err := service.NewCorrectionEngine(corrector, cfg.Corrector.TokenBudgets)
	if err != nil {
		return nil, err
	}

	metrics, err := service.NewPipelineMetrics()
	if err != nil {
		return nil, err
	}

	pipeline, err := service.NewPipelineService(
		newNormalizer(),
		validator,
		repository.NewPostgreSQLDocumentRepository(dbPool),
		queue,
		engine,
		metrics,
	)
	if err != nil {
		return nil, err
	}

	policy, err := backoff.NewPolicy(cfg.Queue.BackoffBase, cfg.Queue.BackoffCeiling)
	if err != nil {
		return nil, err
	}

	consumerConfig := messaging.ConsumerConfig{
		MaxAttempts:       cfg.Queue.MaxDeliver,
		BatchSize:         cfg.Queue.BatchSize,
		LongPollWait:      cfg.Queue.LongPollWait,
		VisibilityCeiling: cfg.Queue.BackoffCeiling,
		JobTimeout:        cfg.Worker.JobTimeout,
	}

	return messaging.NewQueueConsumer(consumerConfig, queue, queue, pipeline, policy)
}

// waitForShutdownAndStop waits for a shutdown signal, then drains the
// consumer.
func waitForShutdownAndStop(consumer inbound.Consumer) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, initiating graceful shutdown", slogger.Fields{
		"signal": sig.String(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error during consumer shutdown", slogger.Fields{"error": err.Error()})
	} else {
		slogger.InfoNoCtx("Consumer shutdown completed", nil)
	}
}
