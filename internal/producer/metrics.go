package producer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const producerInstrumentationName = "github.com/fyrsmithlabs/embedstream/internal/producer"

// Metrics holds embedding production metrics.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	duration    metric.Float64Histogram
	sequenceLen metric.Int64Histogram
	errors      metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for the producer.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(producerInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"embedstream.producer.generation_duration_seconds",
		metric.WithDescription("Duration of one embedding generation, from predict call to assembled tensor, labeled by operation (stacked, pooled)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.sequenceLen, err = m.meter.Int64Histogram(
		"embedstream.producer.sequence_length",
		metric.WithDescription("Token count per input sequence. Long sequences dominate predict latency since the batch size is fixed at 1."),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		m.logger.Warn("failed to create sequence length histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"embedstream.producer.errors_total",
		metric.WithDescription("Total embedding generation errors by operation. Includes model load failures, predict failures, and signature contract violations."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordGeneration records metrics for one embedding generation.
func (m *Metrics) RecordGeneration(ctx context.Context, operation string, duration time.Duration, sequenceLen int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if sequenceLen > 0 && m.sequenceLen != nil {
		m.sequenceLen.Record(ctx, int64(sequenceLen), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
