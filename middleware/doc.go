// Package middleware provides composable middleware for provider attempts.
//
// A [Middleware] is a function that wraps one attempt at a provider call.
// Middleware are composed into a chain using [Chain] and applied around each
// attempt the orchestrator makes. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → attempt
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs operation key, attempt number, duration, and outcome
//   - [Recover] — catches panics in provider clients and converts them to errors
//   - [Timeout] — cancels the attempt context after the per-attempt deadline
//   - [Tracing] — wraps the attempt in an OpenTelemetry span
//   - [Metrics] — records per-attempt duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, op *operation.Operation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
