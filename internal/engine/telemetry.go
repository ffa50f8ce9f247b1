package engine

import (
	"context"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/codecbench/internal/noise"
)

type metrics struct {
	evaluations metric.Int64Counter
	failures    metric.Int64Counter
	similarity  metric.Float64Histogram
}

func newMetrics(log *slog.Logger) *metrics {
	meter := otel.Meter("github.com/loqalabs/codecbench/engine")
	m := &metrics{}
	var err error
	if m.evaluations, err = meter.Int64Counter("codecbench.evaluations",
		metric.WithDescription("Decode attempts, labelled by outcome")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if m.failures, err = meter.Int64Counter("codecbench.failures",
		metric.WithDescription("Decode attempts that ended in an error record")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if m.similarity, err = meter.Float64Histogram("codecbench.similarity",
		metric.WithDescription("Similarity of decoded text to the original")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return m
}

func (m *metrics) record(ctx context.Context, group int, tc *noise.TestCase, rec Record) {
	name, difficulty := "clean", "none"
	if tc != nil {
		name, difficulty = tc.Name, tc.Difficulty.String()
	}
	attrs := metric.WithAttributes(
		attribute.String("group", strconv.Itoa(group)),
		attribute.String("noise", name),
		attribute.String("difficulty", difficulty),
		attribute.Bool("success", rec.Success),
	)
	if m.evaluations != nil {
		m.evaluations.Add(ctx, 1, attrs)
	}
	if rec.Failed() {
		if m.failures != nil {
			m.failures.Add(ctx, 1, attrs)
		}
		return
	}
	if m.similarity != nil {
		m.similarity.Record(ctx, rec.Similarity, attrs)
	}
}
