package middleware

import (
	"context"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/scope"
)

// Scope returns middleware that restores the request's user and session
// identity into the context. This ensures handlers see the same identity
// the request was submitted with.
func Scope() Middleware {
	return func(ctx context.Context, req *request.Request, next Handler) error {
		ctx = scope.Restore(ctx, req.Metadata.UserID, req.Metadata.SessionID)
		return next(ctx)
	}
}
