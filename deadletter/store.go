package deadletter

import (
	"context"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// ListOpts controls pagination and filtering for dead letter list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// WorkerType filters by worker type. Empty means all types.
	WorkerType worker.Type
}

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// PushDeadLetter adds an exhausted assignment entry to the queue.
	PushDeadLetter(ctx context.Context, entry *Entry) error

	// ListDeadLetters returns entries matching the given options.
	ListDeadLetters(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDeadLetter retrieves an entry by ID.
	GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*Entry, error)

	// ReplayDeadLetter marks an entry as replayed. The actual
	// re-dispatch is handled at the service layer.
	ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error

	// PurgeDeadLetters removes entries with FailedAt before the given
	// time. Returns the number of entries removed.
	PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error)

	// CountDeadLetters returns the total number of entries in the queue.
	CountDeadLetters(ctx context.Context) (int64, error)
}
