package deadletter

import (
	"context"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
)

// Service provides high-level dead letter operations over a Store.
type Service struct {
	store     Store
	orchStore orchestration.Store
}

// NewService creates a dead letter service.
func NewService(store Store, orchStore orchestration.Store) *Service {
	return &Service{store: store, orchStore: orchStore}
}

// Push builds an Entry from an exhausted assignment and persists it.
// The error string is captured from the assignment's final failure.
func (s *Service) Push(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment) error {
	now := time.Now().UTC()
	failedAt := now
	if a.CompletedAt != nil {
		failedAt = *a.CompletedAt
	}

	entry := &Entry{
		ID:              id.NewDeadLetterID(),
		OrchestrationID: oreq.ID,
		AssignmentID:    a.ID,
		WorkerType:      a.WorkerType,
		UserID:          oreq.UserID,
		Data:            oreq.Data,
		Error:           a.Error,
		RetryCount:      a.RetryCount,
		MaxRetries:      a.MaxRetries,
		FailedAt:        failedAt,
		CreatedAt:       now,
	}
	return s.store.PushDeadLetter(ctx, entry)
}

// Replay appends a fresh pending assignment for the dead-lettered worker
// type to the original orchestration request, reopens the request for
// processing, and marks the entry as replayed. The saga runner picks the
// reopened request up for re-dispatch.
func (s *Service) Replay(ctx context.Context, entryID id.DeadLetterID) (*orchestration.Assignment, error) {
	entry, err := s.store.GetDeadLetter(ctx, entryID)
	if err != nil {
		return nil, err
	}

	oreq, err := s.orchStore.GetOrchestration(ctx, entry.OrchestrationID)
	if err != nil {
		return nil, err
	}

	a := orchestration.NewAssignment(entry.WorkerType)
	a.MaxRetries = entry.MaxRetries
	oreq.AddAssignment(a)
	oreq.UpdateStatus(orchestration.StatusPending, nil)

	if err := s.orchStore.UpdateOrchestration(ctx, oreq); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDeadLetter(ctx, entryID); err != nil {
		// The assignment is already persisted. Surface the error but keep
		// the new assignment.
		return a, err
	}

	return a, nil
}

// DeadLetterStore returns the underlying store for direct access to
// List, Get, Purge, and Count operations.
func (s *Service) DeadLetterStore() Store {
	return s.store
}
