package request

import (
	"context"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// ListOpts controls pagination for request list queries.
type ListOpts struct {
	// Limit is the maximum number of requests to return. Zero means no limit.
	Limit int
	// Offset is the number of requests to skip.
	Offset int
}

// Store defines the persistence contract for requests.
type Store interface {
	// SaveRequest persists a new request.
	SaveRequest(ctx context.Context, r *Request) error

	// GetRequest retrieves a request by ID.
	GetRequest(ctx context.Context, requestID id.RequestID) (*Request, error)

	// UpdateRequestStatus advances the dispatch status of a stored request.
	UpdateRequestStatus(ctx context.Context, requestID id.RequestID, status Status) error

	// FindPendingRequests returns requests that have not been dispatched yet,
	// oldest first.
	FindPendingRequests(ctx context.Context, opts ListOpts) ([]*Request, error)
}

// ResponseStore defines the persistence contract for responses.
type ResponseStore interface {
	// SaveResponse persists a response.
	SaveResponse(ctx context.Context, r *Response) error

	// FindResponsesByRequest returns every response recorded for a request,
	// oldest first.
	FindResponsesByRequest(ctx context.Context, requestID id.RequestID) ([]*Response, error)

	// LatestResponse returns the most recent response for a request.
	// Returns orchestrator.ErrResponseNotFound when none exist.
	LatestResponse(ctx context.Context, requestID id.RequestID) (*Response, error)
}
