// Package middleware provides composable middleware for step handlers.
//
// A [Middleware] wraps a single handler invocation. Middleware are composed
// into a chain using [Chain] and applied around every step the sequencer
// runs. They are applied right-to-left: the first middleware in the slice is
// the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs client, step and outcome of each invocation
//   - [Recover] catches panics and converts them to errors
//   - [Timeout] fails the step once a deadline passes
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records per-step duration and outcome counters
//   - [RateLimit] throttles calls per step kind
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, c *client.Client, s workflow.Step, next middleware.Handler) (step.Outcome, error) {
//	        // pre-processing
//	        out, err := next(ctx)
//	        // post-processing
//	        return out, err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
