// Package telemetry wires up the otel tracer used to span each run and
// each stage within it, grounded on the teacher's own use of
// go.opentelemetry.io/otel for session/stage spans (one root span per
// alert session, one child span per pipeline stage).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/albarami/qnwis/pkg/pipeline"

// NewTracerProvider builds an SDK tracer provider with the given span
// processors (e.g. a batch exporter wired up by cmd/qnwis), registers it
// as the global provider, and returns it so the caller can Shutdown it
// on process exit.
func NewTracerProvider(opts ...trace.TracerProviderOption) *trace.TracerProvider {
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp
}

// StartRun opens the root span for one orchestrator run.
func StartRun(ctx context.Context, requestID, intent string) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "pipeline.run",
		oteltrace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("intent", intent),
		),
	)
}

// StartStage opens a child span for one stage execution within a run.
func StartStage(ctx context.Context, stage string) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "pipeline.stage",
		oteltrace.WithAttributes(attribute.String("stage", stage)),
	)
}
