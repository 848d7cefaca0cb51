package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// SaveRequest persists a new request.
func (s *Store) SaveRequest(ctx context.Context, r *request.Request) error {
	rID := r.ID.String()
	m, err := requestToMap(r)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, requestKey(rID), m)
	pipe.SAdd(ctx, requestIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("orchestrator/redis: save request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	vals, err := s.client.HGetAll(ctx, requestKey(requestID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: get request: %w", err)
	}
	if len(vals) == 0 {
		return nil, orchestrator.ErrRequestNotFound
	}
	return mapToRequest(vals)
}

// UpdateRequestStatus advances the dispatch status of a stored request.
func (s *Store) UpdateRequestStatus(ctx context.Context, requestID id.RequestID, status request.Status) error {
	key := requestKey(requestID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: update request exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrRequestNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"status", string(status),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: update request status: %w", err)
	}
	return nil
}

// FindPendingRequests returns requests that have not been dispatched yet,
// oldest first.
func (s *Store) FindPendingRequests(ctx context.Context, opts request.ListOpts) ([]*request.Request, error) {
	ids, err := s.client.SMembers(ctx, requestIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: find pending smembers: %w", err)
	}

	var pending []*request.Request
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, requestKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToRequest(vals)
		if convErr != nil {
			continue
		}
		if r.Status != request.StatusPending {
			continue
		}
		pending = append(pending, r)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return applyPage(pending, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Response Store
// ──────────────────────────────────────────────────

// SaveResponse persists a response.
func (s *Store) SaveResponse(ctx context.Context, r *request.Response) error {
	rID := r.ID.String()
	m, err := responseToMap(r)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, responseKey(rID), m)
	pipe.SAdd(ctx, responseIndexKey(r.RequestID.String()), rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("orchestrator/redis: save response: %w", err)
	}
	return nil
}

// FindResponsesByRequest returns every response recorded for a request,
// oldest first.
func (s *Store) FindResponsesByRequest(ctx context.Context, requestID id.RequestID) ([]*request.Response, error) {
	ids, err := s.client.SMembers(ctx, responseIndexKey(requestID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: find responses smembers: %w", err)
	}

	responses := make([]*request.Response, 0, len(ids))
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, responseKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToResponse(vals)
		if convErr != nil {
			continue
		}
		responses = append(responses, r)
	}
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].CreatedAt.Before(responses[j].CreatedAt)
	})
	return responses, nil
}

// LatestResponse returns the most recent response for a request.
func (s *Store) LatestResponse(ctx context.Context, requestID id.RequestID) (*request.Response, error) {
	responses, err := s.FindResponsesByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, orchestrator.ErrResponseNotFound
	}
	return responses[len(responses)-1], nil
}

// ── helpers ──

func requestToMap(r *request.Request) (map[string]interface{}, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: encode request payload: %w", err)
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: encode request metadata: %w", err)
	}
	return map[string]interface{}{
		"id":         r.ID.String(),
		"type":       string(r.Type),
		"payload":    string(payload),
		"metadata":   string(metadata),
		"status":     string(r.Status),
		"created_at": r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": r.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func mapToRequest(m map[string]string) (*request.Request, error) {
	rID, err := id.ParseRequestID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: parse request id: %w", err)
	}

	r := &request.Request{
		ID:     rID,
		Type:   request.Type(m["type"]),
		Status: request.Status(m["status"]),
	}
	if v := m["payload"]; v != "" {
		json.Unmarshal([]byte(v), &r.Payload) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["metadata"]; v != "" {
		json.Unmarshal([]byte(v), &r.Metadata) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	return r, nil
}

func responseToMap(r *request.Response) (map[string]interface{}, error) {
	m := map[string]interface{}{
		"id":         r.ID.String(),
		"request_id": r.RequestID.String(),
		"status":     string(r.Status),
		"created_at": r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": r.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.Result != nil {
		result, err := json.Marshal(r.Result)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/redis: encode response result: %w", err)
		}
		m["result"] = string(result)
	}
	if r.Error != nil {
		respErr, err := json.Marshal(r.Error)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/redis: encode response error: %w", err)
		}
		m["error"] = string(respErr)
	}
	return m, nil
}

func mapToResponse(m map[string]string) (*request.Response, error) {
	rID, err := id.ParseResponseID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: parse response id: %w", err)
	}
	reqID, _ := id.ParseRequestID(m["request_id"]) //nolint:errcheck // best-effort parse from trusted Redis data

	r := &request.Response{
		ID:        rID,
		RequestID: reqID,
		Status:    request.ResponseStatus(m["status"]),
	}
	if v := m["result"]; v != "" {
		json.Unmarshal([]byte(v), &r.Result) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["error"]; v != "" {
		json.Unmarshal([]byte(v), &r.Error) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	return r, nil
}

// applyPage applies offset/limit to a sorted slice.
func applyPage[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
