package orchestration

import (
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// AssignmentStatus is the lifecycle state of a worker assignment.
type AssignmentStatus string

const (
	// AssignmentPending means the assignment has not been dispatched yet.
	AssignmentPending AssignmentStatus = "pending"
	// AssignmentProcessing means a worker is executing the assignment.
	AssignmentProcessing AssignmentStatus = "processing"
	// AssignmentCompleted means the worker finished successfully.
	AssignmentCompleted AssignmentStatus = "completed"
	// AssignmentFailed means the worker reported a failure.
	AssignmentFailed AssignmentStatus = "failed"
)

// DefaultMaxRetries is the retry budget applied when the caller
// supplies none.
const DefaultMaxRetries = 3

// Assignment is one dispatch of a job (or sub-step) to one worker type.
// It is owned exclusively by its orchestration Request.
type Assignment struct {
	orchestrator.Entity

	ID         id.AssignmentID    `json:"id"`
	RequestID  id.OrchestrationID `json:"request_id"`
	WorkerID   id.WorkerID        `json:"worker_id,omitempty"`
	WorkerType worker.Type        `json:"worker_type"`
	Status     AssignmentStatus   `json:"status"`

	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// NewAssignment creates a pending assignment for the given worker type.
// The owning request ID is stamped by Request.AddAssignment.
func NewAssignment(workerType worker.Type) *Assignment {
	return &Assignment{
		Entity:     orchestrator.NewEntity(),
		ID:         id.NewAssignmentID(),
		WorkerType: workerType,
		Status:     AssignmentPending,
		MaxRetries: DefaultMaxRetries,
	}
}

// Start moves the assignment to processing and records the start time.
func (a *Assignment) Start(workerID id.WorkerID) error {
	if a.Status != AssignmentPending {
		return orchestrator.ErrInvalidState
	}
	now := time.Now().UTC()
	a.Status = AssignmentProcessing
	a.WorkerID = workerID
	a.StartedAt = &now
	a.Touch()
	return nil
}

// Complete records a successful result and terminates the assignment.
func (a *Assignment) Complete(response map[string]any) error {
	if a.Status != AssignmentProcessing {
		return orchestrator.ErrInvalidState
	}
	now := time.Now().UTC()
	a.Status = AssignmentCompleted
	a.Response = response
	a.CompletedAt = &now
	a.Touch()
	return nil
}

// Fail records a failure and terminates the assignment. The assignment
// may still return to pending through Retry.
func (a *Assignment) Fail(errMsg string) error {
	if a.Status != AssignmentProcessing && a.Status != AssignmentPending {
		return orchestrator.ErrInvalidState
	}
	now := time.Now().UTC()
	a.Status = AssignmentFailed
	a.Error = errMsg
	a.CompletedAt = &now
	a.Touch()
	return nil
}

// CanRetry reports whether the retry budget allows another attempt.
// It is the sole gate before calling Retry.
func (a *Assignment) CanRetry() bool {
	return a.RetryCount < a.MaxRetries
}

// Retry resets a failed assignment to pending, consuming one unit of the
// retry budget and clearing the previous attempt's error and timestamps.
// The caller is responsible for re-dispatching a message afterwards.
func (a *Assignment) Retry() error {
	if a.Status != AssignmentFailed {
		return orchestrator.ErrInvalidState
	}
	if !a.CanRetry() {
		return orchestrator.ErrMaxRetriesExceeded
	}
	a.RetryCount++
	a.Status = AssignmentPending
	a.Error = ""
	a.StartedAt = nil
	a.CompletedAt = nil
	a.WorkerID = id.Nil
	a.Touch()
	return nil
}

// Terminal reports whether the assignment has reached a final state.
func (a *Assignment) Terminal() bool {
	return a.Status == AssignmentCompleted || a.Status == AssignmentFailed
}
