package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *client.Client, s workflow.Step, next Handler) (out step.Outcome, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step handler panicked",
					slog.String("client_id", c.ID.String()),
					slog.String("step_id", s.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				out = step.Outcome{}
				retErr = fmt.Errorf("panic in step %s: %v", s.ID, r)
			}
		}()
		return next(ctx)
	}
}
