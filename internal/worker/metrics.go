package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the worker's OpenTelemetry instruments. Without a meter
// provider installed they are no-ops, so recording is always safe.
type Metrics struct {
	sessionsStarted  metric.Int64Counter
	stepsEmitted     metric.Int64Counter
	answersRecorded  metric.Int64Counter
	crisisDetections metric.Int64Counter
	flowsCompleted   metric.Int64Counter
	stepLatency      metric.Float64Histogram
}

// NewMetrics registers the worker instruments on the global meter.
func NewMetrics() *Metrics {
	meter := otel.Meter("spiral/worker")
	m := &Metrics{}
	m.sessionsStarted, _ = meter.Int64Counter("spiral.sessions.started",
		metric.WithDescription("Rescue sessions created"))
	m.stepsEmitted, _ = meter.Int64Counter("spiral.steps.emitted",
		metric.WithDescription("Flow steps emitted to clients"))
	m.answersRecorded, _ = meter.Int64Counter("spiral.answers.recorded",
		metric.WithDescription("Step answers recorded"))
	m.crisisDetections, _ = meter.Int64Counter("spiral.crisis.detections",
		metric.WithDescription("Crisis short-circuits triggered"))
	m.flowsCompleted, _ = meter.Int64Counter("spiral.flows.completed",
		metric.WithDescription("Sessions that reached flow completion"))
	m.stepLatency, _ = meter.Float64Histogram("spiral.step.latency",
		metric.WithDescription("Next-step decision and realization latency"),
		metric.WithUnit("ms"))
	return m
}

func (m *Metrics) RecordSessionStarted(ctx context.Context, mode string) {
	m.sessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) RecordStep(ctx context.Context, stepType string, phase int, elapsed time.Duration) {
	m.stepsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step_type", stepType),
		attribute.Int("phase", phase),
	))
	m.stepLatency.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("step_type", stepType),
	))
}

func (m *Metrics) RecordAnswer(ctx context.Context, stepType string) {
	m.answersRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("step_type", stepType)))
}

func (m *Metrics) RecordCrisis(ctx context.Context) {
	m.crisisDetections.Add(ctx, 1)
}

func (m *Metrics) RecordFlowComplete(ctx context.Context, mode string) {
	m.flowsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
