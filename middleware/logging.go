package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// Logging returns middleware that logs step start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *client.Client, s workflow.Step, next Handler) (step.Outcome, error) {
		logger.Info("step started",
			slog.String("client_id", c.ID.String()),
			slog.String("step_id", s.ID),
			slog.String("kind", string(s.Kind)),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("client_id", c.ID.String()),
				slog.String("step_id", s.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step finished",
				slog.String("client_id", c.ID.String()),
				slog.String("step_id", s.ID),
				slog.String("outcome", string(out.Status)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
