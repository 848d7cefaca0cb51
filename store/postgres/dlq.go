package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// PushDeadLetter persists a dead letter entry.
func (s *Store) PushDeadLetter(ctx context.Context, e *deadletter.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orch_dead_letters (
			id, orchestration_id, assignment_id, worker_type, user_id,
			data, error, retry_count, max_retries,
			failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID.String(), e.OrchestrationID.String(), e.AssignmentID.String(),
		string(e.WorkerType), e.UserID,
		e.Data, e.Error, e.RetryCount, e.MaxRetries,
		e.FailedAt, e.ReplayedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letter entries, most recent failures first.
func (s *Store) ListDeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	query := `
		SELECT id, orchestration_id, assignment_id, worker_type, user_id,
		       data, error, retry_count, max_retries,
		       failed_at, replayed_at, created_at
		FROM orch_dead_letters
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.WorkerType != "" {
		query += fmt.Sprintf(" AND worker_type = $%d", argIdx)
		args = append(args, string(opts.WorkerType))
		argIdx++
	}

	query += " ORDER BY failed_at DESC"

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
		return nil, fmt.Errorf("orchestrator/postgres: list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*deadletter.Entry
	for rows.Next() {
		e, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/postgres: scan dead letter row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: iterate dead letter rows: %w", err)
	}
	return out, nil
}

// GetDeadLetter retrieves a dead letter entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, orchestration_id, assignment_id, worker_type, user_id,
		       data, error, retry_count, max_retries,
		       failed_at, replayed_at, created_at
		FROM orch_dead_letters
		WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDeadLetter(row)
	if err != nil {
		if isNoRows(err) {
			return nil, orchestrator.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("orchestrator/postgres: get dead letter: %w", err)
	}
	return e, nil
}

// ReplayDeadLetter marks an entry as replayed.
func (s *Store) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orch_dead_letters SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: replay dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrDeadLetterNotFound
	}
	return nil
}

// PurgeDeadLetters removes entries that failed before the given time and
// returns how many were deleted.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orch_dead_letters WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("orchestrator/postgres: purge dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDeadLetters returns the total number of dead letter entries.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orch_dead_letters`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("orchestrator/postgres: count dead letters: %w", err)
	}
	return count, nil
}

// scanDeadLetter scans a single dead letter row.
func scanDeadLetter(row pgx.Row) (*deadletter.Entry, error) {
	var (
		e       deadletter.Entry
		idStr   string
		orchStr string
		asgStr  string
		typeStr string
	)
	err := row.Scan(
		&idStr, &orchStr, &asgStr, &typeStr, &e.UserID,
		&e.Data, &e.Error, &e.RetryCount, &e.MaxRetries,
		&e.FailedAt, &e.ReplayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.WorkerType = worker.Type(typeStr)

	parsedID, parseErr := id.ParseDeadLetterID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse dead letter id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedOrch, orchErr := id.ParseOrchestrationID(orchStr)
	if orchErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse orchestration id %q: %w", orchStr, orchErr)
	}
	e.OrchestrationID = parsedOrch

	parsedAsg, asgErr := id.ParseAssignmentID(asgStr)
	if asgErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse assignment id %q: %w", asgStr, asgErr)
	}
	e.AssignmentID = parsedAsg

	return &e, nil
}
