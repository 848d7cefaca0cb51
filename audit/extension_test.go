package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/audit"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (m *mockRecorder) Record(_ context.Context, evt *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestRequest() *orchestration.Request {
	return orchestration.NewRequest("user-1", workflow.TypeResumeBuild, map[string]any{
		"resume": map[string]any{"name": "Ada"},
	})
}

func newTestAssignment() *orchestration.Assignment {
	a := orchestration.NewAssignment(worker.TypeResume)
	a.RetryCount = 1
	return a
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	if e.Name() != "audit" {
		t.Errorf("expected name %q, got %q", "audit", e.Name())
	}
}

// ── Request lifecycle tests ──────────────────────────

func TestExtension_RequestReceived(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	ctx := context.Background()
	req := newTestRequest()

	if err := e.OnRequestReceived(ctx, req); err != nil {
		t.Fatalf("OnRequestReceived: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != audit.ActionRequestReceived {
		t.Errorf("Action: want %q, got %q", audit.ActionRequestReceived, evt.Action)
	}
	if evt.Resource != audit.ResourceRequest {
		t.Errorf("Resource: want %q, got %q", audit.ResourceRequest, evt.Resource)
	}
	if evt.Category != audit.CategoryRequest {
		t.Errorf("Category: want %q, got %q", audit.CategoryRequest, evt.Category)
	}
	if evt.ResourceID != req.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", req.ID.String(), evt.ResourceID)
	}
	if evt.Severity != audit.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", audit.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != audit.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", audit.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["workflow_type"] != string(workflow.TypeResumeBuild) {
		t.Errorf("Metadata[workflow_type]: got %v", evt.Metadata["workflow_type"])
	}
	if evt.Metadata["user_id"] != "user-1" {
		t.Errorf("Metadata[user_id]: got %v", evt.Metadata["user_id"])
	}
}

func TestExtension_RequestRouted(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	req := newTestRequest()
	req.AddAssignment(orchestration.NewAssignment(worker.TypeResume))
	req.AddAssignment(orchestration.NewAssignment(worker.TypeAssistant))

	if err := e.OnRequestRouted(context.Background(), req, req.Assignments()); err != nil {
		t.Fatalf("OnRequestRouted: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionRequestRouted {
		t.Errorf("Action: want %q, got %q", audit.ActionRequestRouted, evt.Action)
	}
	if evt.Metadata["assignment_count"] != 2 {
		t.Errorf("Metadata[assignment_count]: want 2, got %v", evt.Metadata["assignment_count"])
	}
}

// ── Assignment lifecycle tests ───────────────────────

func TestExtension_AssignmentRetrying(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	a := newTestAssignment()
	nextRun := time.Now().Add(30 * time.Second)

	if err := e.OnAssignmentRetrying(context.Background(), a, 2, nextRun); err != nil {
		t.Fatalf("OnAssignmentRetrying: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionAssignmentRetrying {
		t.Errorf("Action: want %q, got %q", audit.ActionAssignmentRetrying, evt.Action)
	}
	if evt.Severity != audit.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", audit.SeverityWarning, evt.Severity)
	}
	if evt.Outcome != audit.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", audit.OutcomeFailure, evt.Outcome)
	}
	if evt.Metadata["attempt"] != 2 {
		t.Errorf("Metadata[attempt]: want 2, got %v", evt.Metadata["attempt"])
	}
}

func TestExtension_AssignmentDeadLettered(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	a := newTestAssignment()
	assignErr := errors.New("max retries exceeded")

	if err := e.OnAssignmentDeadLettered(context.Background(), a, assignErr); err != nil {
		t.Fatalf("OnAssignmentDeadLettered: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionAssignmentDeadLettered {
		t.Errorf("Action: want %q, got %q", audit.ActionAssignmentDeadLettered, evt.Action)
	}
	if evt.Severity != audit.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", audit.SeverityCritical, evt.Severity)
	}
	if evt.Reason != "max retries exceeded" {
		t.Errorf("Reason: want %q, got %q", "max retries exceeded", evt.Reason)
	}
	if evt.Metadata["error"] != "max retries exceeded" {
		t.Errorf("Metadata[error]: got %v", evt.Metadata["error"])
	}
	if evt.Metadata["retry_count"] != 1 {
		t.Errorf("Metadata[retry_count]: want 1, got %v", evt.Metadata["retry_count"])
	}
}

// ── Orchestration lifecycle tests ────────────────────

func TestExtension_OrchestrationCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	req := newTestRequest()
	elapsed := 150 * time.Millisecond

	if err := e.OnOrchestrationCompleted(context.Background(), req, elapsed); err != nil {
		t.Fatalf("OnOrchestrationCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionOrchestrationCompleted {
		t.Errorf("Action: want %q, got %q", audit.ActionOrchestrationCompleted, evt.Action)
	}
	if evt.Severity != audit.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", audit.SeverityInfo, evt.Severity)
	}
	if evt.Metadata["elapsed_ms"] != elapsed.Milliseconds() {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", elapsed.Milliseconds(), evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_OrchestrationFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	req := newTestRequest()
	reqErr := errors.New("all workers failed")

	if err := e.OnOrchestrationFailed(context.Background(), req, reqErr); err != nil {
		t.Fatalf("OnOrchestrationFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionOrchestrationFailed {
		t.Errorf("Action: want %q, got %q", audit.ActionOrchestrationFailed, evt.Action)
	}
	if evt.Severity != audit.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", audit.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != audit.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", audit.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "all workers failed" {
		t.Errorf("Reason: want %q, got %q", "all workers failed", evt.Reason)
	}
}

// ── Worker lifecycle tests ───────────────────────────

func TestExtension_WorkerRegistered(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	w := worker.New(worker.TypeLatex, nil, worker.Connection{})

	if err := e.OnWorkerRegistered(context.Background(), w); err != nil {
		t.Fatalf("OnWorkerRegistered: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionWorkerRegistered {
		t.Errorf("Action: want %q, got %q", audit.ActionWorkerRegistered, evt.Action)
	}
	if evt.Resource != audit.ResourceWorker {
		t.Errorf("Resource: want %q, got %q", audit.ResourceWorker, evt.Resource)
	}
	if evt.Metadata["worker_type"] != string(worker.TypeLatex) {
		t.Errorf("Metadata[worker_type]: got %v", evt.Metadata["worker_type"])
	}
}

func TestExtension_WorkerLost(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	w := worker.New(worker.TypeAssistant, nil, worker.Connection{})

	if err := e.OnWorkerLost(context.Background(), w); err != nil {
		t.Fatalf("OnWorkerLost: %v", err)
	}

	evt := rec.last()
	if evt.Action != audit.ActionWorkerLost {
		t.Errorf("Action: want %q, got %q", audit.ActionWorkerLost, evt.Action)
	}
	if evt.Severity != audit.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", audit.SeverityWarning, evt.Severity)
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec, audit.WithActions(audit.ActionOrchestrationCompleted, audit.ActionOrchestrationFailed))

	ctx := context.Background()
	req := newTestRequest()

	// Received is NOT enabled — should be silently skipped.
	if err := e.OnRequestReceived(ctx, req); err != nil {
		t.Fatalf("OnRequestReceived: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (received disabled), got %d", rec.count())
	}

	// Completed IS enabled — should be recorded.
	if err := e.OnOrchestrationCompleted(ctx, req, 50*time.Millisecond); err != nil {
		t.Fatalf("OnOrchestrationCompleted: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 event (completed enabled), got %d", rec.count())
	}

	// Failed IS enabled — should be recorded.
	if err := e.OnOrchestrationFailed(ctx, req, errors.New("boom")); err != nil {
		t.Fatalf("OnOrchestrationFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

// ── RecorderFunc adapter test ────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *audit.Event
	fn := audit.RecorderFunc(func(_ context.Context, evt *audit.Event) error {
		captured = evt
		return nil
	})

	e := audit.New(fn)
	req := newTestRequest()

	if err := e.OnRequestReceived(context.Background(), req); err != nil {
		t.Fatalf("OnRequestReceived: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != audit.ActionRequestReceived {
		t.Errorf("Action: want %q, got %q", audit.ActionRequestReceived, captured.Action)
	}
}

// ── Recorder error handling test ─────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := audit.RecorderFunc(func(_ context.Context, _ *audit.Event) error {
		return errors.New("audit backend down")
	})

	e := audit.New(failingRecorder)
	req := newTestRequest()

	// Hook should NOT return an error — audit failures must not block
	// the dispatch pipeline.
	if err := e.OnRequestReceived(context.Background(), req); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	logger := slog.Default()

	reg := ext.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	req := newTestRequest()
	a := newTestAssignment()
	w := worker.New(worker.TypeResume, nil, worker.Connection{})

	reg.EmitRequestReceived(ctx, req)
	reg.EmitRequestRouted(ctx, req, req.Assignments())
	reg.EmitAssignmentRetrying(ctx, a, 1, time.Now())
	reg.EmitAssignmentDeadLettered(ctx, a, errors.New("dead"))
	reg.EmitOrchestrationCompleted(ctx, req, 2*time.Second)
	reg.EmitOrchestrationFailed(ctx, req, errors.New("fail"))
	reg.EmitWorkerRegistered(ctx, w)
	reg.EmitWorkerLost(ctx, w)

	// Verify all event types were recorded.
	allActions := audit.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}

	for _, action := range allActions {
		evt := rec.findByAction(action)
		if evt == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}

// ── AllActions test ──────────────────────────────────

func TestAllActions(t *testing.T) {
	actions := audit.AllActions()
	if len(actions) != 8 {
		t.Errorf("expected 8 actions, got %d", len(actions))
	}
}
