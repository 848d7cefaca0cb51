package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// meterName is the instrumentation scope name for orchestrator metrics.
const meterName = "github.com/Engineer-s-Edge/enginedge-core-sub005"

// Metrics returns middleware that records per-request dispatch metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - orchestrator.dispatch.duration (Float64Histogram): dispatch time in
//     seconds, with attributes: request_type, source, status ("ok" or "error")
//   - orchestrator.dispatch.executions (Int64Counter): total dispatches,
//     with attributes: request_type, source, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"orchestrator.dispatch.duration",
		metric.WithDescription("Duration of request dispatch in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"orchestrator.dispatch.executions",
		metric.WithDescription("Total number of request dispatches"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, req *request.Request, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("request_type", string(req.Type)),
			attribute.String("source", req.Metadata.Source),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
