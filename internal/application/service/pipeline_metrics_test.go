package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	collected := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			collected[m.Name] = m
		}
	}
	return collected
}

func TestPipelineMetrics_RecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	metrics, err := NewPipelineMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordIngest(ctx, string(OutcomePersisted))
	metrics.RecordIngest(ctx, string(OutcomeEnqueued))
	metrics.RecordCorrection(ctx, "corrected", 1500*time.Millisecond)

	collected := collectMetrics(t, reader)

	ingested, ok := collected[DocumentsIngestedCounterName]
	require.True(t, ok, "ingest counter not collected")
	sum, ok := ingested.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.EqualValues(t, 2, total)

	corrections, ok := collected[CorrectionsCounterName]
	require.True(t, ok, "corrections counter not collected")
	correctionSum, ok := corrections.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, correctionSum.DataPoints, 1)
	assert.EqualValues(t, 1, correctionSum.DataPoints[0].Value)

	duration, ok := collected[CorrectionDurationName]
	require.True(t, ok, "duration histogram not collected")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}

func TestPipelineMetrics_NilReceiverIsSafe(t *testing.T) {
	var metrics *PipelineMetrics
	metrics.RecordIngest(context.Background(), "persisted")
	metrics.RecordCorrection(context.Background(), "failed", time.Second)
}
