package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// meterName is the instrumentation scope name for aegis metrics.
const meterName = "github.com/xraph/aegis"

// Metrics returns middleware that records per-step execution metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - aegis.step.duration (Float64Histogram): execution time in seconds
//   - aegis.step.executions (Int64Counter): total executions
//
// Both carry the attributes step_id, kind and status ("completed",
// "pending_approval" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"aegis.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"aegis.step.executions",
		metric.WithDescription("Total number of step executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, _ *client.Client, s workflow.Step, next Handler) (step.Outcome, error) {
		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("step_id", s.ID),
			attribute.String("kind", string(s.Kind)),
			attribute.String("status", outcomeStatus(out, err)),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return out, err
	}
}
