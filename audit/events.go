package audit

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionRequestReceived        = "request.received"
	ActionRequestRouted          = "request.routed"
	ActionAssignmentRetrying     = "assignment.retrying"
	ActionAssignmentDeadLettered = "assignment.deadlettered"
	ActionOrchestrationCompleted = "orchestration.completed"
	ActionOrchestrationFailed    = "orchestration.failed"
	ActionWorkerRegistered       = "worker.registered"
	ActionWorkerLost             = "worker.lost"
)

// Audit event categories group related actions.
const (
	CategoryRequest    = "orchestrator.request"
	CategoryAssignment = "orchestrator.assignment"
	CategoryWorker     = "orchestrator.worker"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceRequest    = "orchestration_request"
	ResourceAssignment = "worker_assignment"
	ResourceWorker     = "worker"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRequestReceived,
		ActionRequestRouted,
		ActionAssignmentRetrying,
		ActionAssignmentDeadLettered,
		ActionOrchestrationCompleted,
		ActionOrchestrationFailed,
		ActionWorkerRegistered,
		ActionWorkerLost,
	}
}
