package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

type result struct {
	out step.Outcome
	err error
}

// Timeout returns middleware that enforces a per-step execution deadline.
// The handler runs with a context that expires after d; if it has not
// returned by then the step fails with context.DeadlineExceeded even when
// the handler ignores its context. A zero d disables the deadline.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *client.Client, s workflow.Step, next Handler) (step.Outcome, error) {
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: fmt.Errorf("panic in step %s: %v", s.ID, r)}
				}
			}()
			out, err := next(ctx)
			done <- result{out: out, err: err}
		}()

		select {
		case r := <-done:
			return r.out, r.err
		case <-ctx.Done():
			logger.Warn("step handler timed out",
				slog.String("client_id", c.ID.String()),
				slog.String("step_id", s.ID),
				slog.Duration("timeout", d),
			)
			return step.Outcome{}, fmt.Errorf("step %s: %w", s.ID, ctx.Err())
		}
	}
}
