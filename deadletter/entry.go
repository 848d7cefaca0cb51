package deadletter

import (
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Entry represents a worker assignment that has exhausted its retry
// budget and been moved to the dead letter queue for inspection or
// replay.
type Entry struct {
	ID              id.DeadLetterID    `json:"id"`
	OrchestrationID id.OrchestrationID `json:"orchestration_id"`
	AssignmentID    id.AssignmentID    `json:"assignment_id"`
	WorkerType      worker.Type        `json:"worker_type"`
	UserID          string             `json:"user_id,omitempty"`
	Data            map[string]any     `json:"data,omitempty"`
	Error           string             `json:"error"`
	RetryCount      int                `json:"retry_count"`
	MaxRetries      int                `json:"max_retries"`
	FailedAt        time.Time          `json:"failed_at"`
	ReplayedAt      *time.Time         `json:"replayed_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}
