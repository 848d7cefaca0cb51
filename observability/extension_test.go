package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/observability"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

func setup() (*sdkmetric.ManualReader, *observability.MetricsExtension) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64]", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func newTestRequest() *orchestration.Request {
	return orchestration.NewRequest("user-1", workflow.TypeExpertResearch, map[string]any{
		"query": "quantum error correction",
	})
}

func TestMetricsExtension_Name(t *testing.T) {
	_, e := setup()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_RequestReceived(t *testing.T) {
	reader, e := setup()
	if err := e.OnRequestReceived(context.Background(), newTestRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "orchestrator.requests.received"); got != 1 {
		t.Errorf("requests.received: want 1, got %d", got)
	}
}

func TestMetricsExtension_RequestRouted_CountsAssignments(t *testing.T) {
	reader, e := setup()
	req := newTestRequest()
	req.AddAssignment(orchestration.NewAssignment(worker.TypeAgentTool))
	req.AddAssignment(orchestration.NewAssignment(worker.TypeDataProcessing))
	req.AddAssignment(orchestration.NewAssignment(worker.TypeAssistant))

	if err := e.OnRequestRouted(context.Background(), req, req.Assignments()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "orchestrator.requests.routed"); got != 1 {
		t.Errorf("requests.routed: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "orchestrator.assignments.created"); got != 3 {
		t.Errorf("assignments.created: want 3, got %d", got)
	}
}

func TestMetricsExtension_AssignmentRetrying(t *testing.T) {
	reader, e := setup()
	a := orchestration.NewAssignment(worker.TypeResume)
	if err := e.OnAssignmentRetrying(context.Background(), a, 1, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "orchestrator.assignments.retried"); got != 1 {
		t.Errorf("assignments.retried: want 1, got %d", got)
	}
}

func TestMetricsExtension_AssignmentDeadLettered(t *testing.T) {
	reader, e := setup()
	a := orchestration.NewAssignment(worker.TypeResume)
	if err := e.OnAssignmentDeadLettered(context.Background(), a, errors.New("exhausted")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "orchestrator.assignments.deadlettered"); got != 1 {
		t.Errorf("assignments.deadlettered: want 1, got %d", got)
	}
}

func TestMetricsExtension_OrchestrationOutcomes(t *testing.T) {
	reader, e := setup()
	req := newTestRequest()

	if err := e.OnOrchestrationCompleted(context.Background(), req, 300*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnOrchestrationFailed(context.Background(), req, errors.New("fail")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, reader, "orchestrator.orchestrations.completed"); got != 1 {
		t.Errorf("orchestrations.completed: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "orchestrator.orchestrations.failed"); got != 1 {
		t.Errorf("orchestrations.failed: want 1, got %d", got)
	}
}

func TestMetricsExtension_OrchestrationDurationRecorded(t *testing.T) {
	reader, e := setup()
	req := newTestRequest()

	if err := e.OnOrchestrationCompleted(context.Background(), req, 250*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "orchestrator.orchestration.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("expected Histogram[float64]")
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
				t.Fatal("expected 1 duration data point")
			}
			found = true
		}
	}
	if !found {
		t.Fatal("orchestrator.orchestration.duration metric not found")
	}
}

func TestMetricsExtension_WorkerChurn(t *testing.T) {
	reader, e := setup()
	w := worker.New(worker.TypeLatex, nil, worker.Connection{})

	if err := e.OnWorkerRegistered(context.Background(), w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnWorkerLost(context.Background(), w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, reader, "orchestrator.workers.registered"); got != 1 {
		t.Errorf("workers.registered: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "orchestrator.workers.lost"); got != 1 {
		t.Errorf("workers.lost: want 1, got %d", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	// Without a global provider the instruments are noops; hooks must not panic.
	e := observability.NewMetricsExtension()
	req := newTestRequest()
	if err := e.OnRequestReceived(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
