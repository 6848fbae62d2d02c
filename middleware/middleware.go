package middleware

import (
	"context"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// Handler is the terminal function that runs the step handler.
type Handler func(ctx context.Context) (step.Outcome, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// client and step being executed and the next handler to call.
type Middleware func(ctx context.Context, c *client.Client, s workflow.Step, next Handler) (step.Outcome, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, c *client.Client, s workflow.Step, next Handler) (step.Outcome, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (step.Outcome, error) {
				return mw(ctx, c, s, prev)
			}
		}
		return h(ctx)
	}
}

// Wrap returns a step.Handler that runs h inside the middleware chain.
func Wrap(h step.Handler, mws ...Middleware) step.Handler {
	if len(mws) == 0 {
		return h
	}
	chain := Chain(mws...)
	return step.HandlerFunc(func(ctx context.Context, c *client.Client, s workflow.Step) (step.Outcome, error) {
		return chain(ctx, c, s, func(ctx context.Context) (step.Outcome, error) {
			return h.Execute(ctx, c, s)
		})
	})
}

func outcomeStatus(out step.Outcome, err error) string {
	if err != nil {
		return "error"
	}
	return string(out.Status)
}
