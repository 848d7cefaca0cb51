package middleware

import (
	"context"
	"log/slog"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// Timeout returns middleware that enforces a per-request dispatch deadline.
// If the request carries a non-zero Timeout, a context.WithTimeout wraps the
// handler call. When the deadline is exceeded the context is cancelled and
// the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *request.Request, next Handler) error {
		if req.Metadata.Timeout > 0 {
			logger.Debug("dispatch timeout set",
				slog.String("request_id", req.ID.String()),
				slog.Duration("timeout", req.Metadata.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Metadata.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
