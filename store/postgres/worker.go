package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

const workerColumns = `id, type, status, capabilities, connection,
	last_health_check, created_at, updated_at`

// RegisterWorker persists a newly registered worker.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orch_workers (
			id, type, status, capabilities, connection,
			last_health_check, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID.String(), string(w.Type), string(w.Status),
		w.Capabilities, w.Connection,
		w.LastHealthCheck, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return orchestrator.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("orchestrator/postgres: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orch_workers WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: deregister worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM orch_workers WHERE id = $1`,
		workerID.String(),
	)

	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, orchestrator.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("orchestrator/postgres: get worker: %w", err)
	}
	return w, nil
}

// FindWorkersByType returns all workers of the given type, oldest first.
func (s *Store) FindWorkersByType(ctx context.Context, workerType worker.Type) ([]*worker.Worker, error) {
	return s.findWorkers(ctx,
		`SELECT `+workerColumns+` FROM orch_workers
		WHERE type = $1 ORDER BY created_at ASC`,
		string(workerType),
	)
}

// FindAvailableWorkers returns every worker currently accepting work,
// oldest first.
func (s *Store) FindAvailableWorkers(ctx context.Context) ([]*worker.Worker, error) {
	return s.findWorkers(ctx,
		`SELECT `+workerColumns+` FROM orch_workers
		WHERE status = $1 ORDER BY created_at ASC`,
		string(worker.StatusAvailable),
	)
}

// UpdateWorker persists changes to an existing worker.
func (s *Store) UpdateWorker(ctx context.Context, w *worker.Worker) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orch_workers SET
			type = $2, status = $3, capabilities = $4, connection = $5,
			last_health_check = $6, updated_at = $7
		WHERE id = $1`,
		w.ID.String(), string(w.Type), string(w.Status),
		w.Capabilities, w.Connection, w.LastHealthCheck, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: update worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// UpdateWorkerStatus transitions a worker's health status and refreshes
// its health-check timestamp.
func (s *Store) UpdateWorkerStatus(ctx context.Context, workerID id.WorkerID, status worker.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orch_workers SET
			status = $2, last_health_check = NOW(), updated_at = NOW()
		WHERE id = $1`,
		workerID.String(), string(status),
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: update worker status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker refreshes a worker's health-check timestamp.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orch_workers SET
			last_health_check = NOW(), updated_at = NOW()
		WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: heartbeat worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrWorkerNotFound
	}
	return nil
}

// ReapStaleWorkers returns workers whose last health check is older than
// the given threshold. Workers that never reported health fall back to
// their registration time.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	return s.findWorkers(ctx, `
		SELECT `+workerColumns+` FROM orch_workers
		WHERE COALESCE(last_health_check, created_at) < NOW() - $1::interval
		ORDER BY created_at ASC`,
		threshold.String(),
	)
}

func (s *Store) findWorkers(ctx context.Context, query string, args ...interface{}) ([]*worker.Worker, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: find workers: %w", err)
	}
	defer rows.Close()

	var out []*worker.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/postgres: scan worker row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: iterate worker rows: %w", err)
	}
	return out, nil
}

// scanWorker scans a single worker row.
func scanWorker(row pgx.Row) (*worker.Worker, error) {
	var (
		w         worker.Worker
		idStr     string
		typeStr   string
		statusStr string
	)
	err := row.Scan(
		&idStr, &typeStr, &statusStr, &w.Capabilities, &w.Connection,
		&w.LastHealthCheck, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Type = worker.Type(typeStr)
	w.Status = worker.Status(statusStr)

	parsedID, parseErr := id.ParseWorkerID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse worker id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	return &w, nil
}
