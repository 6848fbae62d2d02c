package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/aegis/notify"
)

// Compile-time interface check.
var _ notify.Port = (*Metrics)(nil)

// meterName is the instrumentation scope name for aegis observability.
const meterName = "github.com/xraph/aegis/observability"

// Metrics records onboarding lifecycle metrics from notifications.
type Metrics struct {
	StepUpdates       metric.Int64Counter
	ApprovalsRequired metric.Int64Counter
	Completed         metric.Int64Counter
	Errors            metric.Int64Counter
	Duration          metric.Float64Histogram
}

// NewMetrics creates a Metrics port using the global OTel MeterProvider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a Metrics port with the provided meter.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	// On error the API hands back noop instruments.
	updates, _ := meter.Int64Counter(
		"aegis.onboarding.step_updates",
		metric.WithDescription("Step status transitions"),
		metric.WithUnit("{update}"),
	)
	approvals, _ := meter.Int64Counter(
		"aegis.onboarding.approvals_required",
		metric.WithDescription("Runs parked at an approval gate"),
		metric.WithUnit("{approval}"),
	)
	completed, _ := meter.Int64Counter(
		"aegis.onboarding.completed",
		metric.WithDescription("Onboarding runs completed"),
		metric.WithUnit("{run}"),
	)
	errs, _ := meter.Int64Counter(
		"aegis.onboarding.errors",
		metric.WithDescription("Onboarding runs terminated by an error"),
		metric.WithUnit("{error}"),
	)
	duration, _ := meter.Float64Histogram(
		"aegis.onboarding.duration",
		metric.WithDescription("Wall-clock duration of completed runs in seconds"),
		metric.WithUnit("s"),
	)

	return &Metrics{
		StepUpdates:       updates,
		ApprovalsRequired: approvals,
		Completed:         completed,
		Errors:            errs,
		Duration:          duration,
	}
}

// Notify implements notify.Port. It never fails.
func (m *Metrics) Notify(ctx context.Context, msg notify.Message) error {
	switch p := msg.Payload.(type) {
	case notify.StepUpdate:
		m.StepUpdates.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step_id", p.StepID),
			attribute.String("status", string(p.Status)),
		))
	case notify.ApprovalRequired:
		m.ApprovalsRequired.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step_id", p.StepID),
		))
	case notify.WorkflowComplete:
		attrs := metric.WithAttributes(attribute.String("project_type", p.ProjectType))
		m.Completed.Add(ctx, 1, attrs)
		m.Duration.Record(ctx, float64(p.ElapsedMs)/1000, attrs)
	case notify.Error:
		m.Errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_code", p.Code),
		))
	}
	return nil
}
