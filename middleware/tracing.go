package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// tracerName is the instrumentation scope name for orchestrator tracing.
const tracerName = "github.com/Engineer-s-Edge/enginedge-core-sub005"

// Tracing returns middleware that wraps dispatch in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: orchestrator.request.id, orchestrator.request.type,
// orchestrator.priority, orchestrator.scope.user_id, orchestrator.scope.session_id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *request.Request, next Handler) error {
		ctx, span := tracer.Start(ctx, "orchestrator.request.dispatch",
			trace.WithAttributes(
				attribute.String("orchestrator.request.id", req.ID.String()),
				attribute.String("orchestrator.request.type", string(req.Type)),
				attribute.Int("orchestrator.priority", req.Metadata.Priority),
				attribute.String("orchestrator.scope.user_id", req.Metadata.UserID),
				attribute.String("orchestrator.scope.session_id", req.Metadata.SessionID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
