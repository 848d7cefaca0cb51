package worker

import (
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// Type names the kind of work a backend executor performs.
type Type string

const (
	// TypeAssistant executes conversational and completion work.
	TypeAssistant Type = "assistant"
	// TypeResume executes resume parsing, scoring, and tailoring.
	TypeResume Type = "resume"
	// TypeLatex compiles LaTeX documents.
	TypeLatex Type = "latex"
	// TypeInterview processes mock-interview sessions.
	TypeInterview Type = "interview"
	// TypeAgentTool runs agent tool invocations.
	TypeAgentTool Type = "agent-tool"
	// TypeDataProcessing runs document ingestion and transformation.
	TypeDataProcessing Type = "data-processing"
	// TypeScheduling runs calendar and scheduling-model work.
	TypeScheduling Type = "scheduling"
)

// Valid reports whether t is a recognized worker type.
func (t Type) Valid() bool {
	switch t {
	case TypeAssistant, TypeResume, TypeLatex, TypeInterview,
		TypeAgentTool, TypeDataProcessing, TypeScheduling:
		return true
	}
	return false
}

// Status is the registry state of a worker.
type Status string

const (
	// StatusAvailable means the worker is healthy and accepting work.
	StatusAvailable Status = "available"
	// StatusBusy means the worker is healthy but at capacity.
	StatusBusy Status = "busy"
	// StatusHealthy means the worker answered its last health check but its
	// capacity is not known.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy means the worker failed its last health check or went
	// silent past the liveness threshold.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown means the worker has never reported health.
	StatusUnknown Status = "unknown"
)

// Capability declares one ability of a worker: a name, the request types
// it covers, and how many it can run at once.
type Capability struct {
	Name                  string         `json:"name"`
	SupportedRequestTypes []request.Type `json:"supported_request_types"`
	MaxConcurrency        int            `json:"max_concurrency"`
}

// RetryPolicy describes how a worker's connection should be retried.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
}

// Connection holds the coordinates for reaching a worker.
type Connection struct {
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	Protocol    string        `json:"protocol"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	RetryPolicy RetryPolicy   `json:"retry_policy"`
}

// Worker represents a registered backend executor.
type Worker struct {
	orchestrator.Entity

	ID              id.WorkerID  `json:"id"`
	Type            Type         `json:"type"`
	Status          Status       `json:"status"`
	Capabilities    []Capability `json:"capabilities"`
	Connection      Connection   `json:"connection"`
	LastHealthCheck *time.Time   `json:"last_health_check,omitempty"`
}

// New creates a worker in unknown status with a fresh ID.
func New(typ Type, caps []Capability, conn Connection) *Worker {
	return &Worker{
		Entity:       orchestrator.NewEntity(),
		ID:           id.NewWorkerID(),
		Type:         typ,
		Status:       StatusUnknown,
		Capabilities: caps,
		Connection:   conn,
	}
}

// IsAvailable reports whether the worker can accept new work right now.
func (w *Worker) IsAvailable() bool {
	return w.Status == StatusAvailable
}

// IsHealthy reports whether the worker's last known health state is good.
func (w *Worker) IsHealthy() bool {
	switch w.Status {
	case StatusAvailable, StatusBusy, StatusHealthy:
		return true
	}
	return false
}

// CanHandle reports whether any declared capability covers the request
// type.
func (w *Worker) CanHandle(t request.Type) bool {
	for _, c := range w.Capabilities {
		for _, rt := range c.SupportedRequestTypes {
			if rt == t {
				return true
			}
		}
	}
	return false
}

// UpdateHealth refreshes the worker's status and health-check timestamp.
func (w *Worker) UpdateHealth(status Status) {
	now := time.Now().UTC()
	w.Status = status
	w.LastHealthCheck = &now
	w.Touch()
}
