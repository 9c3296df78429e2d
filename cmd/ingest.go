package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"docmender/internal/adapter/outbound/natsqueue"
	"docmender/internal/adapter/outbound/repository"
	"docmender/internal/adapter/outbound/schemaval"
	"docmender/internal/application/common/slogger"
	"docmender/internal/application/service"
	"docmender/internal/domain/normalization"
	"docmender/internal/port/outbound"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// newIngestCmd creates and returns the ingest command.
func newIngestCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Ingest documents from a JSON file",
		Long: `Ingest documents from a JSON file containing an array of objects.

Each document is normalized and validated against the configured schema.
Valid documents are persisted directly; invalid documents are enqueued as
correction jobs for the worker to repair asynchronously.

With --replace the document store is wiped first and valid documents are
written in one bulk insert.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runIngest(args[0], replace)
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Wipe the store and bulk-import")
	return cmd
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newIngestCmd())
}

func runIngest(path string, replace bool) error {
	raws, err := readDocumentFile(path)
	if err != nil {
		return err
	}

	ctx := context.Background()

	dbPool, err := repository.NewDatabaseConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	queue, err := natsqueue.NewJetStreamQueue(cfg.NATS, cfg.Queue)
	if err != nil {
		return err
	}
	if err := queue.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = queue.Disconnect() }()

	validator, err := schemaval.NewFromYAMLFile(cfg.Schema.Path)
	if err != nil {
		return err
	}

	pipeline, err := newProducerPipeline(dbPool, queue, validator)
	if err != nil {
		return err
	}

	var persisted, enqueued int
	if replace {
		persisted, enqueued, err = pipeline.ImportReplace(ctx, raws)
	} else {
		persisted, enqueued, err = pipeline.IngestBatch(ctx, raws)
	}
	if err != nil {
		return fmt.Errorf("ingest aborted after %d documents: %w", persisted+enqueued, err)
	}

	slogger.InfoNoCtx("Ingest completed", slogger.Fields{
		"file":      path,
		"persisted": persisted,
		"enqueued":  enqueued,
	})
	return nil
}

func readDocumentFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	var raws []map[string]any
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("document file must contain a JSON array of objects: %w", err)
	}
	return raws, nil
}

// newProducerPipeline wires the ingest-side pipeline. No correction engine
// is attached; corrections happen in the worker process.
func newProducerPipeline(
	dbPool *pgxpool.Pool,
	queue outbound.MessageQueue,
	validator outbound.SchemaValidator,
) (*service.PipelineService, error) {
	metrics, err := service.NewPipelineMetrics()
	if err != nil {
		return nil, err
	}

	return service.NewPipelineService(
		newNormalizer(),
		validator,
		repository.NewPostgreSQLDocumentRepository(dbPool),
		queue,
		nil,
		metrics,
	)
}

func newNormalizer() *normalization.DocumentNormalizer {
	return normalization.NewDocumentNormalizer(normalization.DefaultConfig())
}
