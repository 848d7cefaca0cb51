// Package ext defines the extension system for the orchestrator.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnOrchestrationCompleted(ctx context.Context, req *orchestration.Request, elapsed time.Duration) error {
//	    log.Printf("request %s completed in %s", req.ID, elapsed)
//	    return nil
//	}
//
// # Request Lifecycle Hooks
//
//   - [RequestReceived] — request was accepted and persisted
//   - [RequestRouted] — routing produced worker assignments
//   - [MessagePublished] — a dispatch message reached the broker
//   - [WorkerReply] — a worker reply message was ingested
//
// # Assignment Lifecycle Hooks
//
//   - [AssignmentRetrying] — assignment failed but will be re-dispatched
//   - [AssignmentDeadLettered] — assignment exhausted its retry budget
//
// # Orchestration Lifecycle Hooks
//
//   - [OrchestrationCompleted] — all assignments reached a terminal state
//   - [OrchestrationFailed] — the request failed terminally
//
// # Other Hooks
//
//   - [WorkerRegistered] — a worker joined the pool
//   - [WorkerLost] — a worker missed its heartbeat window
//   - [Shutdown] — the orchestrator is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
