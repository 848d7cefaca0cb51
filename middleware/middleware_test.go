package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/middleware"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/scope"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *request.Request, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *request.Request, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	req := request.New(request.TypeLLMInference, nil, request.Metadata{})
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), req, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), request.New(request.TypeLLMInference, nil, request.Metadata{}), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *request.Request, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), request.New(request.TypeLLMInference, nil, request.Metadata{}), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	req := request.New(request.TypeResumeAnalysis, nil, request.Metadata{})

	err := mw(context.Background(), req, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	want := "panic dispatching " + req.ID.String() + ": test panic"
	if got := err.Error(); got != want {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	req := request.New(request.TypeResumeAnalysis, nil, request.Metadata{})

	called := false
	err := mw(context.Background(), req, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Success(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Logging(logger)
	req := request.New(request.TypeLLMInference, nil, request.Metadata{Source: "api"})

	called := false
	err := mw(context.Background(), req, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Logging(logger)
	req := request.New(request.TypeLLMInference, nil, request.Metadata{Source: "api"})
	want := errors.New("fail")

	err := mw(context.Background(), req, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestScope_RestoresFromRequest(t *testing.T) {
	mw := middleware.Scope()
	req := request.New(request.TypeLLMInference, nil, request.Metadata{
		UserID:    "user_test123",
		SessionID: "sess_test456",
	})

	err := mw(context.Background(), req, func(ctx context.Context) error {
		s, ok := scope.From(ctx)
		if !ok {
			t.Fatal("expected scope in context")
		}
		if s.UserID != "user_test123" {
			t.Errorf("UserID = %q, want %q", s.UserID, "user_test123")
		}
		if s.SessionID != "sess_test456" {
			t.Errorf("SessionID = %q, want %q", s.SessionID, "sess_test456")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScope_NoOpWhenEmpty(t *testing.T) {
	mw := middleware.Scope()
	req := request.New(request.TypeLLMInference, nil, request.Metadata{})

	err := mw(context.Background(), req, func(ctx context.Context) error {
		if _, ok := scope.From(ctx); ok {
			t.Fatal("expected no scope in context for anonymous request")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
