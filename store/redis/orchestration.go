package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
)

// Orchestration aggregates own mutable assignment state, so they are
// stored whole as JSON strings rather than flattened into hashes.

// SaveOrchestration persists a new orchestration request.
func (s *Store) SaveOrchestration(ctx context.Context, r *orchestration.Request) error {
	rID := r.ID.String()
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("orchestrator/redis: encode orchestration: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, orchestrationKey(rID), raw, 0)
	pipe.SAdd(ctx, orchestrationIDsKey, rID)
	if r.IdempotencyKey != "" {
		pipe.HSet(ctx, idempotencyHashKey, r.IdempotencyKey, rID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("orchestrator/redis: save orchestration: %w", err)
	}
	return nil
}

// GetOrchestration retrieves an orchestration request by ID.
func (s *Store) GetOrchestration(ctx context.Context, requestID id.OrchestrationID) (*orchestration.Request, error) {
	raw, err := s.client.Get(ctx, orchestrationKey(requestID.String())).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, orchestrator.ErrOrchestrationNotFound
		}
		return nil, fmt.Errorf("orchestrator/redis: get orchestration: %w", err)
	}

	var r orchestration.Request
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("orchestrator/redis: decode orchestration: %w", err)
	}
	return &r, nil
}

// UpdateOrchestration persists changes to an existing request and its
// owned assignments.
func (s *Store) UpdateOrchestration(ctx context.Context, r *orchestration.Request) error {
	key := orchestrationKey(r.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: update orchestration exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrOrchestrationNotFound
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("orchestrator/redis: encode orchestration: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("orchestrator/redis: update orchestration: %w", err)
	}
	return nil
}

// FindByIdempotencyKey returns the request previously submitted with the
// given key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*orchestration.Request, error) {
	rID, err := s.client.HGet(ctx, idempotencyHashKey, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, orchestrator.ErrOrchestrationNotFound
		}
		return nil, fmt.Errorf("orchestrator/redis: idempotency lookup: %w", err)
	}

	requestID, err := id.ParseOrchestrationID(rID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: parse orchestration id: %w", err)
	}
	return s.GetOrchestration(ctx, requestID)
}

// ListOrchestrationsByStatus returns requests in the given state, oldest
// first.
func (s *Store) ListOrchestrationsByStatus(ctx context.Context, status orchestration.Status, opts orchestration.ListOpts) ([]*orchestration.Request, error) {
	ids, err := s.client.SMembers(ctx, orchestrationIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: list orchestrations smembers: %w", err)
	}

	var matched []*orchestration.Request
	for _, rID := range ids {
		raw, getErr := s.client.Get(ctx, orchestrationKey(rID)).Result()
		if getErr != nil {
			continue
		}
		var r orchestration.Request
		if convErr := json.Unmarshal([]byte(raw), &r); convErr != nil {
			continue
		}
		if r.Status != status {
			continue
		}
		matched = append(matched, &r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return applyPage(matched, opts.Offset, opts.Limit), nil
}
