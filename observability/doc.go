// Package observability provides OpenTelemetry-based metrics extensions
// for the orchestrator. The MetricsExtension implements lifecycle hooks
// to record system-wide counters for request intake, routing, retries,
// dead letters, orchestration outcomes, and worker registry churn.
//
// For per-dispatch tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
