// Package service holds the application services of the correction
// pipeline: the correction engine that escalates token budgets and the
// orchestrator that ties validation, queueing, correction, and persistence
// together.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docmender/internal/application/common/logging"
	"docmender/internal/application/common/slogger"
	"docmender/internal/domain/entity"
	domainerrors "docmender/internal/domain/errors/domain"
	"docmender/internal/domain/messaging"
	"docmender/internal/domain/normalization"
	"docmender/internal/port/outbound"
)

// IngestOutcome reports what happened to one ingested document.
type IngestOutcome string

const (
	// OutcomePersisted means the document was valid and stored directly.
	OutcomePersisted IngestOutcome = "persisted"

	// OutcomeEnqueued means the document failed validation and a
	// correction job was enqueued.
	OutcomeEnqueued IngestOutcome = "enqueued"
)

// PipelineService is the pipeline orchestrator. On the producer side it
// normalizes, validates, and either persists or enqueues; on the consumer
// side it is the registered job handler: correct, re-validate, persist.
//
// It holds no retry logic of its own. A handler error is raised to the
// consumer loop, whose retry and dead-letter policy is the only one.
type PipelineService struct {
	normalizer *normalization.DocumentNormalizer
	validator  outbound.SchemaValidator
	repository outbound.DocumentRepository
	queue      outbound.MessageQueue
	engine     *CorrectionEngine
	metrics    *PipelineMetrics
	logger     logging.ApplicationLogger
}

// NewPipelineService wires the pipeline's collaborators.
func NewPipelineService(
	normalizer *normalization.DocumentNormalizer,
	validator outbound.SchemaValidator,
	repository outbound.DocumentRepository,
	queue outbound.MessageQueue,
	engine *CorrectionEngine,
	metrics *PipelineMetrics,
) (*PipelineService, error) {
	if normalizer == nil {
		return nil, errors.New("normalizer cannot be nil")
	}
	if validator == nil {
		return nil, errors.New("validator cannot be nil")
	}
	if repository == nil {
		return nil, errors.New("repository cannot be nil")
	}
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}
	// engine may be nil for producer-only deployments; HandleCorrectionJob
	// rejects jobs in that configuration.
	return &PipelineService{
		normalizer: normalizer,
		validator:  validator,
		repository: repository,
		queue:      queue,
		engine:     engine,
		metrics:    metrics,
		logger:     slogger.WithComponent("pipeline"),
	}, nil
}

// Ingest normalizes and validates one raw document. Valid documents are
// persisted; invalid ones are wrapped as correction jobs and enqueued.
func (s *PipelineService) Ingest(ctx context.Context, raw map[string]any) (IngestOutcome, error) {
	doc, err := s.normalizer.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("failed to normalize document: %w", err)
	}

	ctx = logging.EnsureCorrelationID(ctx)

	result, err := s.validator.Validate(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("validator failure: %w", err)
	}

	if result.Valid {
		if err := s.repository.UpsertByID(ctx, doc); err != nil {
			return "", domainerrors.TransportError("persist document", err)
		}
		s.metrics.RecordIngest(ctx, string(OutcomePersisted))
		s.logger.Info(ctx, "Document valid, persisted", logging.Fields{
			"document_id": doc.DocumentID,
		})
		return OutcomePersisted, nil
	}

	job, err := messaging.NewCorrectionJob(doc, result.Errors)
	if err != nil {
		return "", fmt.Errorf("failed to build correction job: %w", err)
	}
	job.CorrelationID = logging.CorrelationIDFromContext(ctx)

	if _, err := s.queue.Send(ctx, job, 0); err != nil {
		return "", domainerrors.TransportError("enqueue correction job", err)
	}

	s.metrics.RecordIngest(ctx, string(OutcomeEnqueued))
	s.logger.Info(ctx, "Document invalid, correction job enqueued", logging.Fields{
		"document_id":       doc.DocumentID,
		"message_id":        job.MessageID,
		"validation_errors": len(result.Errors),
	})
	return OutcomeEnqueued, nil
}

// IngestBatch runs Ingest over a batch, persisting valid documents and
// enqueuing the rest. The first normalizer or transport failure aborts.
func (s *PipelineService) IngestBatch(
	ctx context.Context,
	raws []map[string]any,
) (persisted, enqueued int, err error) {
	for _, raw := range raws {
		outcome, ingestErr := s.Ingest(ctx, raw)
		if ingestErr != nil {
			return persisted, enqueued, ingestErr
		}
		switch outcome {
		case OutcomePersisted:
			persisted++
		case OutcomeEnqueued:
			enqueued++
		}
	}
	return persisted, enqueued, nil
}

// ImportReplace is the bulk import workflow: wipe the store, bulk-insert
// every valid document, and enqueue a correction job for each invalid one.
// Valid documents land in one repository batch rather than per-row upserts.
func (s *PipelineService) ImportReplace(
	ctx context.Context,
	raws []map[string]any,
) (persisted, enqueued int, err error) {
	if err := s.repository.DeleteAll(ctx); err != nil {
		return 0, 0, domainerrors.TransportError("clear document store", err)
	}

	valid := make([]entity.Document, 0, len(raws))
	for _, raw := range raws {
		doc, normErr := s.normalizer.Normalize(raw)
		if normErr != nil {
			return persisted, enqueued, fmt.Errorf("failed to normalize document: %w", normErr)
		}

		docCtx := logging.EnsureCorrelationID(ctx)

		result, valErr := s.validator.Validate(docCtx, doc)
		if valErr != nil {
			return persisted, enqueued, fmt.Errorf("validator failure: %w", valErr)
		}

		if result.Valid {
			valid = append(valid, doc)
			continue
		}

		job, jobErr := messaging.NewCorrectionJob(doc, result.Errors)
		if jobErr != nil {
			return persisted, enqueued, fmt.Errorf("failed to build correction job: %w", jobErr)
		}
		job.CorrelationID = logging.CorrelationIDFromContext(docCtx)

		if _, sendErr := s.queue.Send(docCtx, job, 0); sendErr != nil {
			return persisted, enqueued, domainerrors.TransportError("enqueue correction job", sendErr)
		}
		s.metrics.RecordIngest(docCtx, string(OutcomeEnqueued))
		enqueued++
	}

	if len(valid) > 0 {
		if err := s.repository.InsertMany(ctx, valid); err != nil {
			return 0, enqueued, domainerrors.TransportError("bulk insert documents", err)
		}
	}
	persisted = len(valid)
	for range valid {
		s.metrics.RecordIngest(ctx, string(OutcomePersisted))
	}

	s.logger.Info(ctx, "Import completed", logging.Fields{
		"persisted": persisted,
		"enqueued":  enqueued,
	})
	return persisted, enqueued, nil
}

// HandleCorrectionJob is the consumer-side handler: correct the document,
// re-validate it, and persist on success. Any error return feeds the
// consumer loop's retry/dead-letter decision; this method never retries.
func (s *PipelineService) HandleCorrectionJob(ctx context.Context, job messaging.CorrectionJob) error {
	if s.engine == nil {
		return errors.New("pipeline was built without a correction engine")
	}

	start := time.Now()

	corrected, err := s.engine.Correct(ctx, job.FailedDocument, job.ValidationErrors)
	if err != nil {
		s.metrics.RecordCorrection(ctx, "failed", time.Since(start))
		return err
	}

	// Post-condition on the engine's identity contract. Should be
	// unreachable; if it trips, the document must never be persisted.
	if corrected.DocumentID != job.DocumentID {
		s.metrics.RecordCorrection(ctx, "failed", time.Since(start))
		return domainerrors.IdentityViolationError(job.DocumentID, corrected.DocumentID)
	}

	result, err := s.validator.Validate(ctx, corrected)
	if err != nil {
		s.metrics.RecordCorrection(ctx, "failed", time.Since(start))
		return domainerrors.TransportError("re-validate corrected document", err)
	}
	if !result.Valid {
		s.metrics.RecordCorrection(ctx, "still_invalid", time.Since(start))
		return domainerrors.StillInvalidError(result.ErrorSummary())
	}

	if err := s.repository.UpsertByID(ctx, corrected); err != nil {
		s.metrics.RecordCorrection(ctx, "failed", time.Since(start))
		return domainerrors.TransportError("persist corrected document", err)
	}

	s.metrics.RecordCorrection(ctx, "corrected", time.Since(start))
	s.logger.Info(ctx, "Document corrected and persisted", logging.Fields{
		"document_id": job.DocumentID,
		"message_id":  job.MessageID,
		"duration":    time.Since(start).String(),
	})
	return nil
}
