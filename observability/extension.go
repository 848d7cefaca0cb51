package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/Engineer-s-Edge/enginedge-core-sub005/observability"

// Compile-time interface checks.
var (
	_ ext.Extension              = (*MetricsExtension)(nil)
	_ ext.RequestReceived        = (*MetricsExtension)(nil)
	_ ext.RequestRouted          = (*MetricsExtension)(nil)
	_ ext.AssignmentRetrying     = (*MetricsExtension)(nil)
	_ ext.AssignmentDeadLettered = (*MetricsExtension)(nil)
	_ ext.OrchestrationCompleted = (*MetricsExtension)(nil)
	_ ext.OrchestrationFailed    = (*MetricsExtension)(nil)
	_ ext.WorkerRegistered       = (*MetricsExtension)(nil)
	_ ext.WorkerLost             = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via OpenTelemetry.
// Register it as an orchestrator extension to automatically track intake
// rates, routing fan-out, retry counts, dead-letter entries, orchestration
// outcomes, and worker registry churn. If no global MeterProvider is
// configured, the instruments are noops and the extension costs nothing.
type MetricsExtension struct {
	requestsReceived       metric.Int64Counter
	requestsRouted         metric.Int64Counter
	assignmentsRouted      metric.Int64Counter
	assignmentsRetried     metric.Int64Counter
	assignmentsDeadLetter  metric.Int64Counter
	orchestrationsComplete metric.Int64Counter
	orchestrationsFailed   metric.Int64Counter
	orchestrationDuration  metric.Float64Histogram
	workersRegistered      metric.Int64Counter
	workersLost            metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// OTel MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Use an sdkmetric.MeterProvider reader in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m := &MetricsExtension{}
	m.requestsReceived, _ = meter.Int64Counter("orchestrator.requests.received",
		metric.WithDescription("Total orchestration requests accepted"),
		metric.WithUnit("{request}"))
	m.requestsRouted, _ = meter.Int64Counter("orchestrator.requests.routed",
		metric.WithDescription("Total orchestration requests routed to workers"),
		metric.WithUnit("{request}"))
	m.assignmentsRouted, _ = meter.Int64Counter("orchestrator.assignments.created",
		metric.WithDescription("Total worker assignments created by routing"),
		metric.WithUnit("{assignment}"))
	m.assignmentsRetried, _ = meter.Int64Counter("orchestrator.assignments.retried",
		metric.WithDescription("Total assignment re-dispatch attempts"),
		metric.WithUnit("{assignment}"))
	m.assignmentsDeadLetter, _ = meter.Int64Counter("orchestrator.assignments.deadlettered",
		metric.WithDescription("Total assignments moved to the dead letter store"),
		metric.WithUnit("{assignment}"))
	m.orchestrationsComplete, _ = meter.Int64Counter("orchestrator.orchestrations.completed",
		metric.WithDescription("Total orchestrations completed successfully"),
		metric.WithUnit("{orchestration}"))
	m.orchestrationsFailed, _ = meter.Int64Counter("orchestrator.orchestrations.failed",
		metric.WithDescription("Total orchestrations failed terminally"),
		metric.WithUnit("{orchestration}"))
	m.orchestrationDuration, _ = meter.Float64Histogram("orchestrator.orchestration.duration",
		metric.WithDescription("End-to-end orchestration time in seconds"),
		metric.WithUnit("s"))
	m.workersRegistered, _ = meter.Int64Counter("orchestrator.workers.registered",
		metric.WithDescription("Total worker registrations"),
		metric.WithUnit("{worker}"))
	m.workersLost, _ = meter.Int64Counter("orchestrator.workers.lost",
		metric.WithDescription("Total workers marked lost after missed heartbeats"),
		metric.WithUnit("{worker}"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func workflowAttr(req *orchestration.Request) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow_type", string(req.Workflow)))
}

// ── Request lifecycle hooks ─────────────────────────

// OnRequestReceived implements ext.RequestReceived.
func (m *MetricsExtension) OnRequestReceived(ctx context.Context, req *orchestration.Request) error {
	m.requestsReceived.Add(ctx, 1, workflowAttr(req))
	return nil
}

// OnRequestRouted implements ext.RequestRouted.
func (m *MetricsExtension) OnRequestRouted(ctx context.Context, req *orchestration.Request, assignments []*orchestration.Assignment) error {
	attrs := workflowAttr(req)
	m.requestsRouted.Add(ctx, 1, attrs)
	m.assignmentsRouted.Add(ctx, int64(len(assignments)), attrs)
	return nil
}

// ── Assignment lifecycle hooks ──────────────────────

// OnAssignmentRetrying implements ext.AssignmentRetrying.
func (m *MetricsExtension) OnAssignmentRetrying(ctx context.Context, a *orchestration.Assignment, _ int, _ time.Time) error {
	m.assignmentsRetried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker_type", string(a.WorkerType)),
	))
	return nil
}

// OnAssignmentDeadLettered implements ext.AssignmentDeadLettered.
func (m *MetricsExtension) OnAssignmentDeadLettered(ctx context.Context, a *orchestration.Assignment, _ error) error {
	m.assignmentsDeadLetter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker_type", string(a.WorkerType)),
	))
	return nil
}

// ── Orchestration lifecycle hooks ───────────────────

// OnOrchestrationCompleted implements ext.OrchestrationCompleted.
func (m *MetricsExtension) OnOrchestrationCompleted(ctx context.Context, req *orchestration.Request, elapsed time.Duration) error {
	attrs := workflowAttr(req)
	m.orchestrationsComplete.Add(ctx, 1, attrs)
	m.orchestrationDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnOrchestrationFailed implements ext.OrchestrationFailed.
func (m *MetricsExtension) OnOrchestrationFailed(ctx context.Context, req *orchestration.Request, _ error) error {
	m.orchestrationsFailed.Add(ctx, 1, workflowAttr(req))
	return nil
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerRegistered implements ext.WorkerRegistered.
func (m *MetricsExtension) OnWorkerRegistered(ctx context.Context, w *worker.Worker) error {
	m.workersRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker_type", string(w.Type)),
	))
	return nil
}

// OnWorkerLost implements ext.WorkerLost.
func (m *MetricsExtension) OnWorkerLost(ctx context.Context, w *worker.Worker) error {
	m.workersLost.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker_type", string(w.Type)),
	))
	return nil
}
