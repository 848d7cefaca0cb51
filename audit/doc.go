// Package audit is an orchestrator extension that bridges lifecycle
// events to an immutable audit trail backend.
//
// Every request, assignment, and worker lifecycle hook emits a structured
// audit event through the [Recorder] interface. The extension assigns
// appropriate severity levels (info for normal operations, warning for
// retries, critical for terminal failures) and rich metadata (workflow
// type, worker type, retry counts, elapsed time, errors).
//
// # Usage
//
//	audit.New(audit.RecorderFunc(func(ctx context.Context, evt *audit.Event) error {
//	    return trail.Write(ctx, evt.Action, evt.Resource, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionOrchestrationFailed,
//	        audit.ActionAssignmentDeadLettered,
//	    ),
//	)
package audit
