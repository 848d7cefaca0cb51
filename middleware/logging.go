package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// Logging returns middleware that logs dispatch start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *request.Request, next Handler) error {
		logger.Info("dispatch started",
			slog.String("request_type", string(req.Type)),
			slog.String("request_id", req.ID.String()),
			slog.String("source", req.Metadata.Source),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("dispatch failed",
				slog.String("request_type", string(req.Type)),
				slog.String("request_id", req.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("dispatch completed",
				slog.String("request_type", string(req.Type)),
				slog.String("request_id", req.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
