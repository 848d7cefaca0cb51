package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type requestReceivedEntry struct {
	name string
	hook RequestReceived
}

type requestRoutedEntry struct {
	name string
	hook RequestRouted
}

type messagePublishedEntry struct {
	name string
	hook MessagePublished
}

type workerReplyEntry struct {
	name string
	hook WorkerReply
}

type assignmentRetryingEntry struct {
	name string
	hook AssignmentRetrying
}

type assignmentDeadLetteredEntry struct {
	name string
	hook AssignmentDeadLettered
}

type orchestrationCompletedEntry struct {
	name string
	hook OrchestrationCompleted
}

type orchestrationFailedEntry struct {
	name string
	hook OrchestrationFailed
}

type workerRegisteredEntry struct {
	name string
	hook WorkerRegistered
}

type workerLostEntry struct {
	name string
	hook WorkerLost
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	requestReceived        []requestReceivedEntry
	requestRouted          []requestRoutedEntry
	messagePublished       []messagePublishedEntry
	workerReply            []workerReplyEntry
	assignmentRetrying     []assignmentRetryingEntry
	assignmentDeadLettered []assignmentDeadLetteredEntry
	orchestrationCompleted []orchestrationCompletedEntry
	orchestrationFailed    []orchestrationFailedEntry
	workerRegistered       []workerRegisteredEntry
	workerLost             []workerLostEntry
	shutdown               []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RequestReceived); ok {
		r.requestReceived = append(r.requestReceived, requestReceivedEntry{name, h})
	}
	if h, ok := e.(RequestRouted); ok {
		r.requestRouted = append(r.requestRouted, requestRoutedEntry{name, h})
	}
	if h, ok := e.(MessagePublished); ok {
		r.messagePublished = append(r.messagePublished, messagePublishedEntry{name, h})
	}
	if h, ok := e.(WorkerReply); ok {
		r.workerReply = append(r.workerReply, workerReplyEntry{name, h})
	}
	if h, ok := e.(AssignmentRetrying); ok {
		r.assignmentRetrying = append(r.assignmentRetrying, assignmentRetryingEntry{name, h})
	}
	if h, ok := e.(AssignmentDeadLettered); ok {
		r.assignmentDeadLettered = append(r.assignmentDeadLettered, assignmentDeadLetteredEntry{name, h})
	}
	if h, ok := e.(OrchestrationCompleted); ok {
		r.orchestrationCompleted = append(r.orchestrationCompleted, orchestrationCompletedEntry{name, h})
	}
	if h, ok := e.(OrchestrationFailed); ok {
		r.orchestrationFailed = append(r.orchestrationFailed, orchestrationFailedEntry{name, h})
	}
	if h, ok := e.(WorkerRegistered); ok {
		r.workerRegistered = append(r.workerRegistered, workerRegisteredEntry{name, h})
	}
	if h, ok := e.(WorkerLost); ok {
		r.workerLost = append(r.workerLost, workerLostEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Request event emitters
// ──────────────────────────────────────────────────

// EmitRequestReceived notifies all extensions that implement RequestReceived.
func (r *Registry) EmitRequestReceived(ctx context.Context, req *orchestration.Request) {
	for _, e := range r.requestReceived {
		if err := e.hook.OnRequestReceived(ctx, req); err != nil {
			r.logHookError("OnRequestReceived", e.name, err)
		}
	}
}

// EmitRequestRouted notifies all extensions that implement RequestRouted.
func (r *Registry) EmitRequestRouted(ctx context.Context, req *orchestration.Request, assignments []*orchestration.Assignment) {
	for _, e := range r.requestRouted {
		if err := e.hook.OnRequestRouted(ctx, req, assignments); err != nil {
			r.logHookError("OnRequestRouted", e.name, err)
		}
	}
}

// EmitMessagePublished notifies all extensions that implement MessagePublished.
func (r *Registry) EmitMessagePublished(ctx context.Context, m *message.Message) {
	for _, e := range r.messagePublished {
		if err := e.hook.OnMessagePublished(ctx, m); err != nil {
			r.logHookError("OnMessagePublished", e.name, err)
		}
	}
}

// EmitWorkerReply notifies all extensions that implement WorkerReply.
func (r *Registry) EmitWorkerReply(ctx context.Context, m *message.Message) {
	for _, e := range r.workerReply {
		if err := e.hook.OnWorkerReply(ctx, m); err != nil {
			r.logHookError("OnWorkerReply", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Assignment event emitters
// ──────────────────────────────────────────────────

// EmitAssignmentRetrying notifies all extensions that implement AssignmentRetrying.
func (r *Registry) EmitAssignmentRetrying(ctx context.Context, a *orchestration.Assignment, attempt int, nextRunAt time.Time) {
	for _, e := range r.assignmentRetrying {
		if err := e.hook.OnAssignmentRetrying(ctx, a, attempt, nextRunAt); err != nil {
			r.logHookError("OnAssignmentRetrying", e.name, err)
		}
	}
}

// EmitAssignmentDeadLettered notifies all extensions that implement AssignmentDeadLettered.
func (r *Registry) EmitAssignmentDeadLettered(ctx context.Context, a *orchestration.Assignment, assignErr error) {
	for _, e := range r.assignmentDeadLettered {
		if err := e.hook.OnAssignmentDeadLettered(ctx, a, assignErr); err != nil {
			r.logHookError("OnAssignmentDeadLettered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Orchestration event emitters
// ──────────────────────────────────────────────────

// EmitOrchestrationCompleted notifies all extensions that implement OrchestrationCompleted.
func (r *Registry) EmitOrchestrationCompleted(ctx context.Context, req *orchestration.Request, elapsed time.Duration) {
	for _, e := range r.orchestrationCompleted {
		if err := e.hook.OnOrchestrationCompleted(ctx, req, elapsed); err != nil {
			r.logHookError("OnOrchestrationCompleted", e.name, err)
		}
	}
}

// EmitOrchestrationFailed notifies all extensions that implement OrchestrationFailed.
func (r *Registry) EmitOrchestrationFailed(ctx context.Context, req *orchestration.Request, reqErr error) {
	for _, e := range r.orchestrationFailed {
		if err := e.hook.OnOrchestrationFailed(ctx, req, reqErr); err != nil {
			r.logHookError("OnOrchestrationFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitWorkerRegistered notifies all extensions that implement WorkerRegistered.
func (r *Registry) EmitWorkerRegistered(ctx context.Context, w *worker.Worker) {
	for _, e := range r.workerRegistered {
		if err := e.hook.OnWorkerRegistered(ctx, w); err != nil {
			r.logHookError("OnWorkerRegistered", e.name, err)
		}
	}
}

// EmitWorkerLost notifies all extensions that implement WorkerLost.
func (r *Registry) EmitWorkerLost(ctx context.Context, w *worker.Worker) {
	for _, e := range r.workerLost {
		if err := e.hook.OnWorkerLost(ctx, w); err != nil {
			r.logHookError("OnWorkerLost", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
