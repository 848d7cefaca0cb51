package event

import (
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Event represents a named orchestration lifecycle event. The saga
// runner waits for terminal assignment events through the bus; external
// observers can tail the event log for auditing.
type Event struct {
	ID        id.EventID `json:"id"`
	Name      string     `json:"name"`
	Payload   []byte     `json:"payload,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Acked     bool       `json:"acked"`
	CreatedAt time.Time  `json:"created_at"`
}

// Well-known lifecycle event names.
const (
	NameRequestReceived        = "request.received"
	NameRequestRouted          = "request.routed"
	NameRequestDispatched      = "request.dispatched"
	NameRequestCompleted       = "request.completed"
	NameRequestFailed          = "request.failed"
	NameAssignmentStarted      = "assignment.started"
	NameAssignmentRetried      = "assignment.retried"
	NameAssignmentDeadlettered = "assignment.deadlettered"
)

// AssignmentTerminal returns the event name published when a specific
// assignment reaches a terminal state. The saga runner subscribes to it
// to await step completion.
func AssignmentTerminal(assignmentID id.AssignmentID) string {
	return "assignment.terminal:" + assignmentID.String()
}
