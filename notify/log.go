package notify

import (
	"context"
	"log/slog"
)

// LogPort writes every notification to a structured logger at debug level,
// and errors at warn.
type LogPort struct {
	logger *slog.Logger
}

// NewLogPort creates a LogPort.
func NewLogPort(logger *slog.Logger) *LogPort {
	return &LogPort{logger: logger}
}

// Notify implements Port.
func (p *LogPort) Notify(ctx context.Context, msg Message) error {
	attrs := []slog.Attr{
		slog.String("client_id", msg.ClientID.String()),
		slog.String("type", string(msg.Type)),
	}

	level := slog.LevelDebug
	switch v := msg.Payload.(type) {
	case StepUpdate:
		attrs = append(attrs,
			slog.String("step_id", v.StepID),
			slog.String("status", string(v.Status)),
			slog.Float64("progress", v.Percentage),
		)
	case ApprovalRequired:
		attrs = append(attrs, slog.String("step_id", v.StepID))
	case WorkflowComplete:
		attrs = append(attrs, slog.Int("completed_steps", v.CompletedSteps))
	case Error:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("code", v.Code), slog.String("message", v.Message))
	}

	p.logger.LogAttrs(ctx, level, "notification", attrs...)
	return nil
}
