// Package observability wraps OpenTelemetry tracing and metrics for the
// generation pipeline. When no providers are configured the global no-op
// implementations are used.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "notebook/generation"

const (
	AttrJobID      = "job.id"
	AttrJobStatus  = "job.status"
	AttrOutputType = "job.output_type"
	AttrProvider   = "job.provider"
	AttrAttempt    = "poll.attempt"
)

// Telemetry bundles the tracer and the metric instruments.
type Telemetry struct {
	tracer      trace.Tracer
	submissions metric.Int64Counter
	polls       metric.Int64Counter
	outcomes    metric.Int64Counter
}

// New builds Telemetry from explicit providers.
func New(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.submissions, err = meter.Int64Counter(
		"generation.submissions",
		metric.WithDescription("Job submissions by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		t.submissions, _ = meter.Int64Counter("generation.submissions")
	}
	t.polls, err = meter.Int64Counter(
		"generation.poll.queries",
		metric.WithDescription("Status queries issued by poll loops"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		t.polls, _ = meter.Int64Counter("generation.poll.queries")
	}
	t.outcomes, err = meter.Int64Counter(
		"generation.outcomes",
		metric.WithDescription("Poll loop outcomes by status"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		t.outcomes, _ = meter.Int64Counter("generation.outcomes")
	}
	return t
}

// Default uses the globally registered providers.
func Default() *Telemetry {
	return New(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// StartSpan starts a span with the given attributes.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// CountSubmission records one submit call and its result ("ok", "transport", ...).
func (t *Telemetry) CountSubmission(ctx context.Context, provider, result string) {
	t.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String("result", result),
	))
}

// CountPoll records one status query.
func (t *Telemetry) CountPoll(ctx context.Context, ok bool) {
	t.polls.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

// CountOutcome records how a poll loop ended.
func (t *Telemetry) CountOutcome(ctx context.Context, status string, timedOut bool) {
	t.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrJobStatus, status),
		attribute.Bool("timed_out", timedOut),
	))
}
