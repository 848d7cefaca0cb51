package orchestration

import (
	"encoding/json"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// Status is the lifecycle state of an orchestration request.
type Status string

const (
	// StatusPending means the request has been accepted but no worker has
	// started on it.
	StatusPending Status = "pending"
	// StatusProcessing means at least one assignment has been dispatched.
	StatusProcessing Status = "processing"
	// StatusCompleted means every assignment finished and the merged result
	// is recorded.
	StatusCompleted Status = "completed"
	// StatusFailed means the request terminally failed.
	StatusFailed Status = "failed"
	// StatusCancelled means the caller abandoned the request.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request is one job on the multi-worker workflow path. It exclusively
// owns its ordered assignment list; mutate only through its methods.
type Request struct {
	orchestrator.Entity

	ID             id.OrchestrationID
	UserID         string
	Workflow       workflow.Type
	Status         Status
	Data           map[string]any
	Result         map[string]any
	Error          string
	CorrelationID  string
	IdempotencyKey string
	CompletedAt    *time.Time

	assignments []*Assignment
}

// RequestOption configures a new orchestration request.
type RequestOption func(*Request)

// WithIdempotencyKey attaches a caller-supplied duplicate-detection token.
func WithIdempotencyKey(key string) RequestOption {
	return func(r *Request) { r.IdempotencyKey = key }
}

// WithCorrelationID overrides the correlation ID (defaults to the
// request's own ID).
func WithCorrelationID(cid string) RequestOption {
	return func(r *Request) { r.CorrelationID = cid }
}

// NewRequest creates a pending orchestration request.
func NewRequest(userID string, wf workflow.Type, data map[string]any, opts ...RequestOption) *Request {
	r := &Request{
		Entity:   orchestrator.NewEntity(),
		ID:       id.NewOrchestrationID(),
		UserID:   userID,
		Workflow: wf,
		Status:   StatusPending,
		Data:     data,
	}
	r.CorrelationID = r.ID.String()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpdateStatus advances the lifecycle state. Completed and failed record
// CompletedAt on the first terminal transition; repeating a terminal
// update is a safe overwrite that keeps the original timestamp.
func (r *Request) UpdateStatus(status Status, result map[string]any) {
	if result != nil {
		r.Result = result
	}

	switch status {
	case StatusCompleted, StatusFailed:
		if r.CompletedAt == nil {
			now := time.Now().UTC()
			r.CompletedAt = &now
		}
	case StatusPending, StatusProcessing:
		r.CompletedAt = nil
	case StatusCancelled:
		// Terminal, but not a completion: CompletedAt stays unset.
		r.CompletedAt = nil
	}

	r.Status = status
	r.Touch()
}

// Fail records the failure reason and moves the request to failed.
func (r *Request) Fail(errMsg string) {
	r.Error = errMsg
	r.UpdateStatus(StatusFailed, nil)
}

// AddAssignment appends an assignment to the owned list, stamping the
// back-reference to this request.
func (r *Request) AddAssignment(a *Assignment) {
	a.RequestID = r.ID
	r.assignments = append(r.assignments, a)
	r.Touch()
}

// Assignments returns the ordered assignment list. The slice is a copy;
// the assignments themselves are the owned entities.
func (r *Request) Assignments() []*Assignment {
	out := make([]*Assignment, len(r.assignments))
	copy(out, r.assignments)
	return out
}

// Assignment returns the owned assignment with the given ID.
func (r *Request) Assignment(assignmentID id.AssignmentID) (*Assignment, bool) {
	for _, a := range r.assignments {
		if a.ID == assignmentID {
			return a, true
		}
	}
	return nil, false
}

// AllWorkersComplete reports whether every assignment reached a terminal
// state. A request with zero assignments is never worker-complete.
func (r *Request) AllWorkersComplete() bool {
	if len(r.assignments) == 0 {
		return false
	}
	for _, a := range r.assignments {
		if !a.Terminal() {
			return false
		}
	}
	return true
}

// requestJSON is the serialized form of Request. The owned assignment
// list round-trips through it so stores can persist the aggregate whole.
type requestJSON struct {
	orchestrator.Entity

	ID             id.OrchestrationID `json:"id"`
	UserID         string             `json:"user_id"`
	Workflow       workflow.Type      `json:"workflow"`
	Status         Status             `json:"status"`
	Data           map[string]any     `json:"data,omitempty"`
	Result         map[string]any     `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
	CorrelationID  string             `json:"correlation_id,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	Assignments    []*Assignment      `json:"workers,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestJSON{
		Entity:         r.Entity,
		ID:             r.ID,
		UserID:         r.UserID,
		Workflow:       r.Workflow,
		Status:         r.Status,
		Data:           r.Data,
		Result:         r.Result,
		Error:          r.Error,
		CorrelationID:  r.CorrelationID,
		IdempotencyKey: r.IdempotencyKey,
		CompletedAt:    r.CompletedAt,
		Assignments:    r.assignments,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Entity = raw.Entity
	r.ID = raw.ID
	r.UserID = raw.UserID
	r.Workflow = raw.Workflow
	r.Status = raw.Status
	r.Data = raw.Data
	r.Result = raw.Result
	r.Error = raw.Error
	r.CorrelationID = raw.CorrelationID
	r.IdempotencyKey = raw.IdempotencyKey
	r.CompletedAt = raw.CompletedAt
	r.assignments = raw.Assignments
	return nil
}
