package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	DocumentsIngestedCounterName = "pipeline_documents_ingested_total"
	CorrectionsCounterName       = "pipeline_corrections_total"
	CorrectionDurationName       = "pipeline_correction_duration_seconds"
)

// Attribute keys for consistent labeling.
const (
	AttrOutcome     = "outcome"      // persisted, enqueued, corrected, failed
	AttrFailureKind = "failure_kind" // truncation_exhausted, upstream, still_invalid
)

// PipelineMetrics collects OpenTelemetry counters and histograms for the
// correction pipeline.
type PipelineMetrics struct {
	ingested           metric.Int64Counter
	corrections        metric.Int64Counter
	correctionDuration metric.Float64Histogram
}

// NewPipelineMetrics registers the pipeline instruments on the global
// meter provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("docmender/pipeline", metric.WithInstrumentationVersion("1.0.0"))

	// Correction calls span a model round trip, so buckets run from
	// sub-second to a couple of minutes.
	correctionBuckets := []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0}

	ingested, err := meter.Int64Counter(
		DocumentsIngestedCounterName,
		metric.WithDescription("Documents ingested, labeled by outcome"),
	)
	if err != nil {
		return nil, err
	}

	corrections, err := meter.Int64Counter(
		CorrectionsCounterName,
		metric.WithDescription("Correction job outcomes"),
	)
	if err != nil {
		return nil, err
	}

	correctionDuration, err := meter.Float64Histogram(
		CorrectionDurationName,
		metric.WithDescription("End-to-end duration of one correction job"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(correctionBuckets...),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		ingested:           ingested,
		corrections:        corrections,
		correctionDuration: correctionDuration,
	}, nil
}

// RecordIngest counts one ingested document by outcome.
func (m *PipelineMetrics) RecordIngest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ingested.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// RecordCorrection counts one correction job outcome and its duration.
func (m *PipelineMetrics) RecordCorrection(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcome))
	m.corrections.Add(ctx, 1, attrs)
	m.correctionDuration.Record(ctx, duration.Seconds(), attrs)
}
