// Package scope provides helpers to capture and restore request identity
// (user and session) from/to context.Context.
//
// The orchestration pipeline carries user and session identifiers on the
// request entity; these helpers bridge between those fields and the
// context so that downstream handlers, hooks, and log records see the
// same identity the request was submitted with.
package scope

import "context"

type ctxKey struct{}

// Scope is the identity a request executes under.
type Scope struct {
	UserID    string
	SessionID string
}

// Capture extracts the user and session identifiers from the context.
// Returns empty strings if no scope is present.
func Capture(ctx context.Context) (userID, sessionID string) {
	s, ok := From(ctx)
	if !ok {
		return "", ""
	}
	return s.UserID, s.SessionID
}

// Restore attaches a scope to the context using the given user and
// session IDs. If both are empty, the context is returned unchanged.
func Restore(ctx context.Context, userID, sessionID string) context.Context {
	if userID == "" && sessionID == "" {
		return ctx
	}
	return With(ctx, Scope{UserID: userID, SessionID: sessionID})
}

// With attaches the scope to the context.
func With(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the scope carried by the context, if any.
func From(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}
