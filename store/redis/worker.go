package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// RegisterWorker adds a new worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	wID := w.ID.String()
	m, err := workerToMap(w)
	if err != nil {
		return err
	}

	exists, err := s.client.SIsMember(ctx, workerIDsKey, wID).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: register worker: %w", err)
	}
	if exists {
		return orchestrator.ErrWorkerAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, workerKey(wID), m)
	pipe.SAdd(ctx, workerIDsKey, wID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("orchestrator/redis: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	wID := workerID.String()
	key := workerKey(wID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: deregister exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrWorkerNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, workerIDsKey, wID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("orchestrator/redis: deregister worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	vals, err := s.client.HGetAll(ctx, workerKey(workerID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: get worker: %w", err)
	}
	if len(vals) == 0 {
		return nil, orchestrator.ErrWorkerNotFound
	}
	return mapToWorker(vals)
}

// FindWorkersByType returns all workers of the given type.
func (s *Store) FindWorkersByType(ctx context.Context, typ worker.Type) ([]*worker.Worker, error) {
	return s.findWorkers(ctx, func(w *worker.Worker) bool { return w.Type == typ })
}

// FindAvailableWorkers returns workers currently able to accept work.
func (s *Store) FindAvailableWorkers(ctx context.Context) ([]*worker.Worker, error) {
	return s.findWorkers(ctx, (*worker.Worker).IsAvailable)
}

// UpdateWorker persists changes to an existing worker.
func (s *Store) UpdateWorker(ctx context.Context, w *worker.Worker) error {
	key := workerKey(w.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: update worker exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrWorkerNotFound
	}

	m, err := workerToMap(w)
	if err != nil {
		return err
	}
	if _, err := s.client.HSet(ctx, key, m).Result(); err != nil {
		return fmt.Errorf("orchestrator/redis: update worker: %w", err)
	}
	return nil
}

// UpdateWorkerStatus sets the status and refreshes the health-check
// timestamp for a worker.
func (s *Store) UpdateWorkerStatus(ctx context.Context, workerID id.WorkerID, status worker.Status) error {
	key := workerKey(workerID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: update status exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrWorkerNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key,
		"status", string(status),
		"last_health_check", now,
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: update worker status: %w", err)
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrWorkerNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key,
		"last_health_check", now,
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: heartbeat worker: %w", err)
	}
	return nil
}

// ReapStaleWorkers returns workers whose last heartbeat is older than the
// given threshold.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	return s.findWorkers(ctx, func(w *worker.Worker) bool {
		seen := w.CreatedAt
		if w.LastHealthCheck != nil {
			seen = *w.LastHealthCheck
		}
		return seen.Before(cutoff)
	})
}

func (s *Store) findWorkers(ctx context.Context, match func(*worker.Worker) bool) ([]*worker.Worker, error) {
	ids, err := s.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: find workers smembers: %w", err)
	}

	var matched []*worker.Worker
	for _, wID := range ids {
		vals, getErr := s.client.HGetAll(ctx, workerKey(wID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		w, convErr := mapToWorker(vals)
		if convErr != nil {
			continue
		}
		if match(w) {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// ── helpers ──

func workerToMap(w *worker.Worker) (map[string]interface{}, error) {
	caps, err := json.Marshal(w.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: encode capabilities: %w", err)
	}
	conn, err := json.Marshal(w.Connection)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: encode connection: %w", err)
	}

	m := map[string]interface{}{
		"id":           w.ID.String(),
		"type":         string(w.Type),
		"status":       string(w.Status),
		"capabilities": string(caps),
		"connection":   string(conn),
		"created_at":   w.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   w.UpdatedAt.Format(time.RFC3339Nano),
	}
	if w.LastHealthCheck != nil {
		m["last_health_check"] = w.LastHealthCheck.Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToWorker(m map[string]string) (*worker.Worker, error) {
	wID, err := id.ParseWorkerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: parse worker id: %w", err)
	}

	w := &worker.Worker{
		ID:     wID,
		Type:   worker.Type(m["type"]),
		Status: worker.Status(m["status"]),
	}
	if v := m["capabilities"]; v != "" {
		json.Unmarshal([]byte(v), &w.Capabilities) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["connection"]; v != "" {
		json.Unmarshal([]byte(v), &w.Connection) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["last_health_check"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		w.LastHealthCheck = &t
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	w.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	return w, nil
}
