// Package message defines the wire envelope exchanged between the
// orchestrator and its workers, the codec used to serialize it, and the
// publisher port through which the core reaches the message bus.
//
// The envelope is transport-agnostic: the in-memory broker (package
// stream) and the Redis Streams broker (package stream/redis) both carry
// the same [Message], distinguished only by how bytes move.
package message

import (
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Type categorizes a message on the bus.
type Type string

const (
	// TypeRequest carries work from the orchestrator to a worker.
	TypeRequest Type = "request"
	// TypeResponse carries a worker's result back to the orchestrator.
	TypeResponse Type = "response"
	// TypeCommand carries an imperative instruction (drain, reload).
	TypeCommand Type = "command"
	// TypeEvent carries a lifecycle notification.
	TypeEvent Type = "event"
	// TypeHeartbeat carries worker liveness pings.
	TypeHeartbeat Type = "heartbeat"
	// TypeError carries a transport-level failure report.
	TypeError Type = "error"
)

// SourceOrchestrator is the headers.Source value stamped on every message
// the dispatcher publishes.
const SourceOrchestrator = "orchestrator"

// Headers carries routing and caller context alongside the payload.
type Headers struct {
	Source      string        `json:"source,omitempty"`
	Destination string        `json:"destination,omitempty"`
	Priority    int           `json:"priority,omitempty"`
	TTL         time.Duration `json:"ttl,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	UserID      string        `json:"user_id,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
}

// Message is the envelope for orchestrator↔worker traffic.
// Immutable once created.
type Message struct {
	// ID uniquely identifies this message.
	ID id.MessageID `json:"id"`

	// Type categorizes the message.
	Type Type `json:"type"`

	// Payload carries the work or result content.
	Payload map[string]any `json:"payload,omitempty"`

	// Headers carries routing and caller context.
	Headers Headers `json:"headers"`

	// CorrelationID links this message back to the originating request
	// or assignment.
	CorrelationID string `json:"correlation_id,omitempty"`

	// ReplyTo names the channel a response should be published to.
	ReplyTo string `json:"reply_to,omitempty"`

	// Error carries failure details for error and failed-response messages.
	Error *ErrorDetail `json:"error,omitempty"`

	// Timestamp records when this message was created.
	Timestamp time.Time `json:"ts"`
}

// ErrorDetail describes a failure in a response or error message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// New creates a message of the given type with a fresh ID and timestamp.
func New(typ Type, payload map[string]any) *Message {
	return &Message{
		ID:        id.NewMessageID(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// IsExpired reports whether the message has outlived its header TTL.
// Messages without a TTL never expire.
func (m *Message) IsExpired() bool {
	if m.Headers.TTL <= 0 {
		return false
	}
	return time.Now().UTC().After(m.Timestamp.Add(m.Headers.TTL))
}
