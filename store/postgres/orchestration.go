package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// SaveOrchestration persists an orchestration request together with its
// worker assignments in a single transaction.
func (s *Store) SaveOrchestration(ctx context.Context, r *orchestration.Request) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: save orchestration: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO orch_orchestrations (
			id, user_id, workflow, status, data, result, error,
			correlation_id, idempotency_key, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID.String(), r.UserID, string(r.Workflow), string(r.Status),
		r.Data, r.Result, r.Error,
		r.CorrelationID, r.IdempotencyKey, r.CompletedAt,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return orchestrator.ErrDuplicateSubmission
		}
		return fmt.Errorf("orchestrator/postgres: save orchestration: %w", err)
	}

	if err := upsertAssignments(ctx, tx, r); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("orchestrator/postgres: save orchestration: commit: %w", err)
	}
	return nil
}

// GetOrchestration retrieves an orchestration request and its assignments.
func (s *Store) GetOrchestration(ctx context.Context, requestID id.OrchestrationID) (*orchestration.Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, workflow, status, data, result, error,
		       correlation_id, idempotency_key, completed_at, created_at, updated_at
		FROM orch_orchestrations
		WHERE id = $1`,
		requestID.String(),
	)
	return s.scanFullOrchestration(ctx, row)
}

// UpdateOrchestration persists changes to an orchestration request and its
// assignments. Assignments are upserted; retries mutate existing rows.
func (s *Store) UpdateOrchestration(ctx context.Context, r *orchestration.Request) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: update orchestration: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, `
		UPDATE orch_orchestrations SET
			user_id = $2, workflow = $3, status = $4, data = $5,
			result = $6, error = $7, correlation_id = $8,
			idempotency_key = $9, completed_at = $10, updated_at = $11
		WHERE id = $1`,
		r.ID.String(), r.UserID, string(r.Workflow), string(r.Status),
		r.Data, r.Result, r.Error, r.CorrelationID,
		r.IdempotencyKey, r.CompletedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: update orchestration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrOrchestrationNotFound
	}

	if err := upsertAssignments(ctx, tx, r); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("orchestrator/postgres: update orchestration: commit: %w", err)
	}
	return nil
}

// FindByIdempotencyKey looks up an orchestration request by its idempotency key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*orchestration.Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, workflow, status, data, result, error,
		       correlation_id, idempotency_key, completed_at, created_at, updated_at
		FROM orch_orchestrations
		WHERE idempotency_key = $1`,
		key,
	)
	return s.scanFullOrchestration(ctx, row)
}

// ListOrchestrationsByStatus returns orchestration requests in the given
// status, oldest first. Assignments are not loaded; callers needing the
// full aggregate fetch it by ID.
func (s *Store) ListOrchestrationsByStatus(ctx context.Context, status orchestration.Status, opts orchestration.ListOpts) ([]*orchestration.Request, error) {
	query := `
		SELECT id, user_id, workflow, status, data, result, error,
		       correlation_id, idempotency_key, completed_at, created_at, updated_at
		FROM orch_orchestrations
		WHERE status = $1
		ORDER BY created_at ASC`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: list orchestrations: %w", err)
	}
	defer rows.Close()

	var out []*orchestration.Request
	for rows.Next() {
		r, err := scanOrchestration(rows)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/postgres: scan orchestration row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: iterate orchestration rows: %w", err)
	}
	return out, nil
}

// upsertAssignments writes the request's assignments within tx. ON CONFLICT
// keeps re-saves idempotent as assignments advance through their lifecycle.
func upsertAssignments(ctx context.Context, tx pgx.Tx, r *orchestration.Request) error {
	for _, a := range r.Assignments() {
		_, err := tx.Exec(ctx, `
			INSERT INTO orch_assignments (
				id, orchestration_id, worker_id, worker_type, status,
				response, error, started_at, completed_at,
				retry_count, max_retries, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				worker_id = EXCLUDED.worker_id,
				status = EXCLUDED.status,
				response = EXCLUDED.response,
				error = EXCLUDED.error,
				started_at = EXCLUDED.started_at,
				completed_at = EXCLUDED.completed_at,
				retry_count = EXCLUDED.retry_count,
				max_retries = EXCLUDED.max_retries,
				updated_at = EXCLUDED.updated_at`,
			a.ID.String(), a.RequestID.String(), a.WorkerID.String(),
			string(a.WorkerType), string(a.Status),
			a.Response, a.Error, a.StartedAt, a.CompletedAt,
			a.RetryCount, a.MaxRetries, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("orchestrator/postgres: upsert assignment: %w", err)
		}
	}
	return nil
}

// scanFullOrchestration scans the aggregate row, then loads its assignments.
func (s *Store) scanFullOrchestration(ctx context.Context, row pgx.Row) (*orchestration.Request, error) {
	r, err := scanOrchestration(row)
	if err != nil {
		if isNoRows(err) {
			return nil, orchestrator.ErrOrchestrationNotFound
		}
		return nil, fmt.Errorf("orchestrator/postgres: get orchestration: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, worker_id, worker_type, status, response, error,
		       started_at, completed_at, retry_count, max_retries,
		       created_at, updated_at
		FROM orch_assignments
		WHERE orchestration_id = $1
		ORDER BY created_at ASC`,
		r.ID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: load assignments: %w", err)
	}
	defer rows.Close()

	// AddAssignment touches UpdatedAt; restore the stored timestamps last.
	entity := r.Entity
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/postgres: scan assignment row: %w", err)
		}
		r.AddAssignment(a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: iterate assignment rows: %w", err)
	}
	r.Entity = entity

	return r, nil
}

// scanOrchestration scans a single orchestration row without assignments.
func scanOrchestration(row pgx.Row) (*orchestration.Request, error) {
	var (
		r           orchestration.Request
		idStr       string
		workflowStr string
		statusStr   string
		completedAt *time.Time
	)
	err := row.Scan(
		&idStr, &r.UserID, &workflowStr, &statusStr,
		&r.Data, &r.Result, &r.Error,
		&r.CorrelationID, &r.IdempotencyKey, &completedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Workflow = workflow.Type(workflowStr)
	r.Status = orchestration.Status(statusStr)
	r.CompletedAt = completedAt

	parsedID, parseErr := id.ParseOrchestrationID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse orchestration id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	return &r, nil
}

// scanAssignment scans a single assignment row. The owning request ID is
// stamped by Request.AddAssignment.
func scanAssignment(row pgx.Row) (*orchestration.Assignment, error) {
	var (
		a         orchestration.Assignment
		idStr     string
		workerStr string
		typeStr   string
		statusStr string
	)
	err := row.Scan(
		&idStr, &workerStr, &typeStr, &statusStr,
		&a.Response, &a.Error, &a.StartedAt, &a.CompletedAt,
		&a.RetryCount, &a.MaxRetries, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.WorkerType = worker.Type(typeStr)
	a.Status = orchestration.AssignmentStatus(statusStr)

	parsedID, parseErr := id.ParseAssignmentID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse assignment id %q: %w", idStr, parseErr)
	}
	a.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			a.WorkerID = parsedWorker
		}
	}

	return &a, nil
}
