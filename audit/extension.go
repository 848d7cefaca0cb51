package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Compile-time interface checks.
var (
	_ ext.Extension              = (*Extension)(nil)
	_ ext.RequestReceived        = (*Extension)(nil)
	_ ext.RequestRouted          = (*Extension)(nil)
	_ ext.AssignmentRetrying     = (*Extension)(nil)
	_ ext.AssignmentDeadLettered = (*Extension)(nil)
	_ ext.OrchestrationCompleted = (*Extension)(nil)
	_ ext.OrchestrationFailed    = (*Extension)(nil)
	_ ext.WorkerRegistered       = (*Extension)(nil)
	_ ext.WorkerLost             = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit package carries no dependency
// on any particular trail backend — callers inject the concrete
// implementation at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is a local representation of an audit event.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges orchestrator lifecycle events to an audit trail
// backend. Each lifecycle hook emits a structured audit event through
// the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// ── Request lifecycle hooks ─────────────────────────

// OnRequestReceived implements ext.RequestReceived.
func (e *Extension) OnRequestReceived(ctx context.Context, req *orchestration.Request) error {
	return e.record(ctx, ActionRequestReceived, SeverityInfo, OutcomeSuccess,
		ResourceRequest, req.ID.String(), CategoryRequest, nil,
		"workflow_type", string(req.Workflow),
		"user_id", req.UserID,
	)
}

// OnRequestRouted implements ext.RequestRouted.
func (e *Extension) OnRequestRouted(ctx context.Context, req *orchestration.Request, assignments []*orchestration.Assignment) error {
	types := make([]string, 0, len(assignments))
	for _, a := range assignments {
		types = append(types, string(a.WorkerType))
	}
	return e.record(ctx, ActionRequestRouted, SeverityInfo, OutcomeSuccess,
		ResourceRequest, req.ID.String(), CategoryRequest, nil,
		"workflow_type", string(req.Workflow),
		"assignment_count", len(assignments),
		"worker_types", types,
	)
}

// ── Assignment lifecycle hooks ──────────────────────

// OnAssignmentRetrying implements ext.AssignmentRetrying.
func (e *Extension) OnAssignmentRetrying(ctx context.Context, a *orchestration.Assignment, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionAssignmentRetrying, SeverityWarning, OutcomeFailure,
		ResourceAssignment, a.ID.String(), CategoryAssignment, nil,
		"worker_type", string(a.WorkerType),
		"attempt", attempt,
		"max_retries", a.MaxRetries,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnAssignmentDeadLettered implements ext.AssignmentDeadLettered.
func (e *Extension) OnAssignmentDeadLettered(ctx context.Context, a *orchestration.Assignment, assignErr error) error {
	return e.record(ctx, ActionAssignmentDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceAssignment, a.ID.String(), CategoryAssignment, assignErr,
		"worker_type", string(a.WorkerType),
		"retry_count", a.RetryCount,
	)
}

// ── Orchestration lifecycle hooks ───────────────────

// OnOrchestrationCompleted implements ext.OrchestrationCompleted.
func (e *Extension) OnOrchestrationCompleted(ctx context.Context, req *orchestration.Request, elapsed time.Duration) error {
	return e.record(ctx, ActionOrchestrationCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRequest, req.ID.String(), CategoryRequest, nil,
		"workflow_type", string(req.Workflow),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnOrchestrationFailed implements ext.OrchestrationFailed.
func (e *Extension) OnOrchestrationFailed(ctx context.Context, req *orchestration.Request, reqErr error) error {
	return e.record(ctx, ActionOrchestrationFailed, SeverityCritical, OutcomeFailure,
		ResourceRequest, req.ID.String(), CategoryRequest, reqErr,
		"workflow_type", string(req.Workflow),
		"user_id", req.UserID,
	)
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerRegistered implements ext.WorkerRegistered.
func (e *Extension) OnWorkerRegistered(ctx context.Context, w *worker.Worker) error {
	return e.record(ctx, ActionWorkerRegistered, SeverityInfo, OutcomeSuccess,
		ResourceWorker, w.ID.String(), CategoryWorker, nil,
		"worker_type", string(w.Type),
	)
}

// OnWorkerLost implements ext.WorkerLost.
func (e *Extension) OnWorkerLost(ctx context.Context, w *worker.Worker) error {
	return e.record(ctx, ActionWorkerLost, SeverityWarning, OutcomeFailure,
		ResourceWorker, w.ID.String(), CategoryWorker, nil,
		"worker_type", string(w.Type),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
