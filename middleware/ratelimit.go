package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// RateLimit returns middleware that waits on the limiter registered for the
// step's kind before calling the handler. Kinds without a limiter pass
// straight through. The wait honours ctx, so a cancelled run does not block
// on a drained bucket.
func RateLimit(limits map[workflow.StepKind]*rate.Limiter) Middleware {
	return func(ctx context.Context, _ *client.Client, s workflow.Step, next Handler) (step.Outcome, error) {
		if lim, ok := limits[s.Kind]; ok && lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return step.Outcome{}, fmt.Errorf("rate limit for %s: %w", s.Kind, err)
			}
		}
		return next(ctx)
	}
}
