package orchestration

import (
	"context"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// ListOpts controls pagination for orchestration list queries.
type ListOpts struct {
	// Limit is the maximum number of requests to return. Zero means no limit.
	Limit int
	// Offset is the number of requests to skip.
	Offset int
}

// Store defines the persistence contract for orchestration requests.
// The aggregate is saved and loaded whole, assignments included.
type Store interface {
	// SaveOrchestration persists a new orchestration request.
	SaveOrchestration(ctx context.Context, r *Request) error

	// GetOrchestration retrieves an orchestration request by ID.
	GetOrchestration(ctx context.Context, requestID id.OrchestrationID) (*Request, error)

	// UpdateOrchestration persists changes to an existing request and its
	// owned assignments.
	UpdateOrchestration(ctx context.Context, r *Request) error

	// FindByIdempotencyKey returns the request previously submitted with
	// the given key. Returns orchestrator.ErrOrchestrationNotFound when the
	// key is unseen.
	FindByIdempotencyKey(ctx context.Context, key string) (*Request, error)

	// ListOrchestrationsByStatus returns requests in the given state,
	// oldest first.
	ListOrchestrationsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Request, error)
}
