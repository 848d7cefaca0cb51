// Package middleware provides composable middleware for request dispatch.
//
// A [Middleware] is a function that wraps a dispatch handler. Middleware are
// composed into a chain using [Chain] and applied before each request is
// dispatched. They are applied right-to-left: the first middleware in the
// slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs request type, source, duration, and outcome at each dispatch
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the dispatch context after the request's deadline
//   - [Tracing] — wraps dispatch in an OpenTelemetry span
//   - [Metrics] — records per-request duration and outcome counters
//   - [Scope] — extracts user/session identity from the request and injects it into context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, req *request.Request, next middleware.Handler) error {
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
