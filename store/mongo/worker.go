package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// RegisterWorker adds a new worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	if _, err := s.db.Collection(colWorkers).InsertOne(ctx, toWorkerModel(w)); err != nil {
		if isDuplicate(err) {
			return orchestrator.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("orchestrator/mongo: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.Collection(colWorkers).DeleteOne(ctx, bson.M{"_id": workerID.String()})
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: deregister worker: %w", err)
	}
	if res.DeletedCount == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	var m workerModel
	err := s.db.Collection(colWorkers).FindOne(ctx, bson.M{"_id": workerID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orchestrator.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("orchestrator/mongo: get worker: %w", err)
	}
	return fromWorkerModel(&m)
}

// FindWorkersByType returns all workers of the given type.
func (s *Store) FindWorkersByType(ctx context.Context, typ worker.Type) ([]*worker.Worker, error) {
	return s.findWorkers(ctx, bson.M{"type": string(typ)})
}

// FindAvailableWorkers returns workers currently able to accept work.
func (s *Store) FindAvailableWorkers(ctx context.Context) ([]*worker.Worker, error) {
	return s.findWorkers(ctx, bson.M{"status": string(worker.StatusAvailable)})
}

// UpdateWorker persists changes to an existing worker.
func (s *Store) UpdateWorker(ctx context.Context, w *worker.Worker) error {
	res, err := s.db.Collection(colWorkers).ReplaceOne(ctx,
		bson.M{"_id": w.ID.String()}, toWorkerModel(w))
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: update worker: %w", err)
	}
	if res.MatchedCount == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// UpdateWorkerStatus sets the status and refreshes the health-check
// timestamp for a worker.
func (s *Store) UpdateWorkerStatus(ctx context.Context, workerID id.WorkerID, status worker.Status) error {
	t := now()
	res, err := s.db.Collection(colWorkers).UpdateOne(ctx,
		bson.M{"_id": workerID.String()},
		bson.M{"$set": bson.M{
			"status":            string(status),
			"last_health_check": t,
			"updated_at":        t,
		}},
	)
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: update worker status: %w", err)
	}
	if res.MatchedCount == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	t := now()
	res, err := s.db.Collection(colWorkers).UpdateOne(ctx,
		bson.M{"_id": workerID.String()},
		bson.M{"$set": bson.M{
			"last_health_check": t,
			"updated_at":        t,
		}},
	)
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: heartbeat worker: %w", err)
	}
	if res.MatchedCount == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// ReapStaleWorkers returns workers whose last heartbeat is older than the
// given threshold.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	cutoff := now().Add(-threshold)
	return s.findWorkers(ctx, bson.M{
		"$or": bson.A{
			bson.M{"last_health_check": bson.M{"$lt": cutoff}},
			bson.M{
				"last_health_check": nil,
				"created_at":        bson.M{"$lt": cutoff},
			},
		},
	})
}

func (s *Store) findWorkers(ctx context.Context, filter bson.M) ([]*worker.Worker, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(colWorkers).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: find workers: %w", err)
	}
	defer cursor.Close(ctx)

	var models []workerModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: find workers decode: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(models))
	for i := range models {
		w, convErr := fromWorkerModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("orchestrator/mongo: find workers convert: %w", convErr)
		}
		workers = append(workers, w)
	}
	return workers, nil
}
