package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// SaveRequest persists a new inbound request.
func (s *Store) SaveRequest(ctx context.Context, r *request.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orch_requests (
			id, type, payload, metadata, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID.String(), string(r.Type), r.Payload, r.Metadata,
		string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return orchestrator.ErrRequestExists
		}
		return fmt.Errorf("orchestrator/postgres: save request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, payload, metadata, status, created_at, updated_at
		FROM orch_requests
		WHERE id = $1`,
		requestID.String(),
	)

	r, err := scanRequest(row)
	if err != nil {
		if isNoRows(err) {
			return nil, orchestrator.ErrRequestNotFound
		}
		return nil, fmt.Errorf("orchestrator/postgres: get request: %w", err)
	}
	return r, nil
}

// UpdateRequestStatus transitions a request to the given status.
func (s *Store) UpdateRequestStatus(ctx context.Context, requestID id.RequestID, status request.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orch_requests SET status = $2, updated_at = NOW() WHERE id = $1`,
		requestID.String(), string(status),
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orchestrator.ErrRequestNotFound
	}
	return nil
}

// FindPendingRequests returns pending requests, oldest first.
func (s *Store) FindPendingRequests(ctx context.Context, opts request.ListOpts) ([]*request.Request, error) {
	query := `
		SELECT id, type, payload, metadata, status, created_at, updated_at
		FROM orch_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC`
	args := []interface{}{}
	argIdx := 1

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
		return nil, fmt.Errorf("orchestrator/postgres: find pending requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// SaveResponse persists a worker response.
func (s *Store) SaveResponse(ctx context.Context, resp *request.Response) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orch_responses (
			id, request_id, status, result, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.ID.String(), resp.RequestID.String(), string(resp.Status),
		resp.Result, resp.Error, resp.CreatedAt, resp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("orchestrator/postgres: save response: %w", err)
	}
	return nil
}

// FindResponsesByRequest returns all responses for a request, oldest first.
func (s *Store) FindResponsesByRequest(ctx context.Context, requestID id.RequestID) ([]*request.Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, status, result, error, created_at, updated_at
		FROM orch_responses
		WHERE request_id = $1
		ORDER BY created_at ASC`,
		requestID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: find responses: %w", err)
	}
	defer rows.Close()

	return collectResponses(rows)
}

// LatestResponse returns the most recent response for a request.
func (s *Store) LatestResponse(ctx context.Context, requestID id.RequestID) (*request.Response, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, request_id, status, result, error, created_at, updated_at
		FROM orch_responses
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		requestID.String(),
	)

	resp, err := scanResponse(row)
	if err != nil {
		if isNoRows(err) {
			return nil, orchestrator.ErrResponseNotFound
		}
		return nil, fmt.Errorf("orchestrator/postgres: latest response: %w", err)
	}
	return resp, nil
}

// scanRequest scans a single request row.
func scanRequest(row pgx.Row) (*request.Request, error) {
	var (
		r         request.Request
		idStr     string
		typeStr   string
		statusStr string
	)
	err := row.Scan(
		&idStr, &typeStr, &r.Payload, &r.Metadata, &statusStr,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Type = request.Type(typeStr)
	r.Status = request.Status(statusStr)

	parsedID, parseErr := id.ParseRequestID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse request id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	return &r, nil
}

// collectRequests collects all requests from query rows.
func collectRequests(rows pgx.Rows) ([]*request.Request, error) {
	var out []*request.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/postgres: scan request row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: iterate request rows: %w", err)
	}
	return out, nil
}

// scanResponse scans a single response row.
func scanResponse(row pgx.Row) (*request.Response, error) {
	var (
		resp      request.Response
		idStr     string
		reqStr    string
		statusStr string
	)
	err := row.Scan(
		&idStr, &reqStr, &statusStr, &resp.Result, &resp.Error,
		&resp.CreatedAt, &resp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	resp.Status = request.ResponseStatus(statusStr)

	parsedID, parseErr := id.ParseResponseID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse response id %q: %w", idStr, parseErr)
	}
	resp.ID = parsedID

	parsedReq, reqErr := id.ParseRequestID(reqStr)
	if reqErr != nil {
		return nil, fmt.Errorf("orchestrator/postgres: parse request id %q: %w", reqStr, reqErr)
	}
	resp.RequestID = parsedReq

	return &resp, nil
}

// collectResponses collects all responses from query rows.
func collectResponses(rows pgx.Rows) ([]*request.Response, error) {
	var out []*request.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/postgres: scan response row: %w", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator/postgres: iterate response rows: %w", err)
	}
	return out, nil
}
