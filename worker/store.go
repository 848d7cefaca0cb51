package worker

import (
	"context"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Store defines the persistence contract for the worker registry.
type Store interface {
	// RegisterWorker adds a new worker to the registry.
	RegisterWorker(ctx context.Context, w *Worker) error

	// DeregisterWorker removes a worker from the registry.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// GetWorker retrieves a worker by ID.
	GetWorker(ctx context.Context, workerID id.WorkerID) (*Worker, error)

	// FindWorkersByType returns all workers of the given type.
	FindWorkersByType(ctx context.Context, typ Type) ([]*Worker, error)

	// FindAvailableWorkers returns workers currently able to accept work.
	FindAvailableWorkers(ctx context.Context) ([]*Worker, error)

	// UpdateWorker persists changes to an existing worker.
	UpdateWorker(ctx context.Context, w *Worker) error

	// UpdateWorkerStatus sets the status and refreshes the health-check
	// timestamp for a worker.
	UpdateWorkerStatus(ctx context.Context, workerID id.WorkerID, status Status) error

	// HeartbeatWorker updates the last-seen timestamp for a worker,
	// indicating it is still alive.
	HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error

	// ReapStaleWorkers returns workers whose last heartbeat is older than
	// the given threshold, indicating they may have crashed.
	ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*Worker, error)
}
