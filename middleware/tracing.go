package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// tracerName is the instrumentation scope name for aegis tracing.
const tracerName = "github.com/xraph/aegis"

// Tracing returns middleware that wraps step execution in an OpenTelemetry
// span using the global TracerProvider.
//
// Span attributes include: aegis.client.id, aegis.step.id, aegis.step.kind,
// aegis.step.requires_approval and, on return, aegis.step.outcome.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *client.Client, s workflow.Step, next Handler) (step.Outcome, error) {
		ctx, span := tracer.Start(ctx, "aegis.step.execute",
			trace.WithAttributes(
				attribute.String("aegis.client.id", c.ID.String()),
				attribute.String("aegis.step.id", s.ID),
				attribute.String("aegis.step.kind", string(s.Kind)),
				attribute.Bool("aegis.step.requires_approval", s.RequiresApproval),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		span.SetAttributes(attribute.String("aegis.step.outcome", outcomeStatus(out, err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
