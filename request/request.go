package request

import (
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Type classifies a unit of work by the worker capability it requires.
type Type string

const (
	// TypeLLMInference is conversational / completion work for the
	// assistant workers.
	TypeLLMInference Type = "llm-inference"
	// TypeAgentToolExecution is an agent tool invocation (search, code
	// execution, external APIs).
	TypeAgentToolExecution Type = "agent-tool-execution"
	// TypeInterviewProcessing is mock-interview session work.
	TypeInterviewProcessing Type = "interview-processing"
	// TypeResumeAnalysis is resume parsing, scoring, and tailoring work.
	TypeResumeAnalysis Type = "resume-analysis"
	// TypeLatexCompilation is LaTeX document compilation.
	TypeLatexCompilation Type = "latex-compilation"
	// TypeDataProcessing is document ingestion and transformation work.
	TypeDataProcessing Type = "data-processing"
	// TypeScheduling is calendar / scheduling-model work.
	TypeScheduling Type = "scheduling"
)

// Valid reports whether t is a recognized request type.
func (t Type) Valid() bool {
	switch t {
	case TypeLLMInference, TypeAgentToolExecution, TypeInterviewProcessing,
		TypeResumeAnalysis, TypeLatexCompilation, TypeDataProcessing,
		TypeScheduling:
		return true
	}
	return false
}

// Status is the dispatch state of a stored request.
type Status string

const (
	// StatusPending means the request has been recorded but not dispatched.
	StatusPending Status = "pending"
	// StatusProcessing means a message has been published to a worker.
	StatusProcessing Status = "processing"
	// StatusCompleted means a final successful response has been ingested.
	StatusCompleted Status = "completed"
	// StatusFailed means the request terminally failed.
	StatusFailed Status = "failed"
)

// Metadata carries caller-supplied context for a request.
type Metadata struct {
	UserID    string        `json:"user_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Priority  int           `json:"priority,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Source    string        `json:"source,omitempty"`
}

// Request represents one caller-submitted unit of work.
// The envelope is immutable after creation; only Status advances.
type Request struct {
	orchestrator.Entity

	ID       id.RequestID   `json:"id"`
	Type     Type           `json:"type"`
	Payload  map[string]any `json:"payload"`
	Metadata Metadata       `json:"metadata"`
	Status   Status         `json:"status"`
}

// New creates a pending Request with a fresh ID.
func New(typ Type, payload map[string]any, meta Metadata) *Request {
	return &Request{
		Entity:   orchestrator.NewEntity(),
		ID:       id.NewRequestID(),
		Type:     typ,
		Payload:  payload,
		Metadata: meta,
		Status:   StatusPending,
	}
}

// IsExpired reports whether the request is older than ttl.
// The submission time is CreatedAt; a non-positive ttl never expires.
func (r *Request) IsExpired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return time.Now().UTC().After(r.CreatedAt.Add(ttl))
}
