// Package ext defines the extension system for the orchestrator.
// Extensions are notified of lifecycle events (request received, routed,
// completed, worker lost, etc.) and can react to them — logging, metrics,
// audit trails, webhooks.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Request lifecycle hooks
// ──────────────────────────────────────────────────

// RequestReceived is called after an orchestration request is accepted
// and persisted.
type RequestReceived interface {
	OnRequestReceived(ctx context.Context, req *orchestration.Request) error
}

// RequestRouted is called after routing resolves the request into
// worker assignments.
type RequestRouted interface {
	OnRequestRouted(ctx context.Context, req *orchestration.Request, assignments []*orchestration.Assignment) error
}

// MessagePublished is called after a message is handed to the broker.
type MessagePublished interface {
	OnMessagePublished(ctx context.Context, m *message.Message) error
}

// WorkerReply is called when a worker reply message is ingested.
type WorkerReply interface {
	OnWorkerReply(ctx context.Context, m *message.Message) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// AssignmentRetrying is called when a failed assignment is scheduled
// for re-dispatch.
type AssignmentRetrying interface {
	OnAssignmentRetrying(ctx context.Context, a *orchestration.Assignment, attempt int, nextRunAt time.Time) error
}

// AssignmentDeadLettered is called when an assignment exhausts its
// retry budget and is moved to the dead letter store.
type AssignmentDeadLettered interface {
	OnAssignmentDeadLettered(ctx context.Context, a *orchestration.Assignment, err error) error
}

// ──────────────────────────────────────────────────
// Orchestration lifecycle hooks
// ──────────────────────────────────────────────────

// OrchestrationCompleted is called after every assignment in a request
// reaches a terminal state and the request completes.
type OrchestrationCompleted interface {
	OnOrchestrationCompleted(ctx context.Context, req *orchestration.Request, elapsed time.Duration) error
}

// OrchestrationFailed is called when a request fails terminally.
type OrchestrationFailed interface {
	OnOrchestrationFailed(ctx context.Context, req *orchestration.Request, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerRegistered is called when a worker registers with the pool.
type WorkerRegistered interface {
	OnWorkerRegistered(ctx context.Context, w *worker.Worker) error
}

// WorkerLost is called when a worker misses its heartbeat window and
// is marked unhealthy.
type WorkerLost interface {
	OnWorkerLost(ctx context.Context, w *worker.Worker) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
