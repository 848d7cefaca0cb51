package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// PushDeadLetter adds an exhausted assignment entry to the queue.
func (s *Store) PushDeadLetter(ctx context.Context, entry *deadletter.Entry) error {
	eID := entry.ID.String()
	m, err := deadLetterToMap(entry)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), m)
	pipe.SAdd(ctx, dlqIDsKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("orchestrator/redis: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns entries matching the given options, most
// recently failed first.
func (s *Store) ListDeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	ids, err := s.client.SMembers(ctx, dlqIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: list dead letters: %w", err)
	}

	entries := make([]*deadletter.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, dlqKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDeadLetter(vals)
		if convErr != nil {
			continue
		}
		if opts.WorkerType != "" && e.WorkerType != opts.WorkerType {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})
	return applyPage(entries, opts.Offset, opts.Limit), nil
}

// GetDeadLetter retrieves an entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	vals, err := s.client.HGetAll(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: get dead letter: %w", err)
	}
	if len(vals) == 0 {
		return nil, orchestrator.ErrDeadLetterNotFound
	}
	return mapToDeadLetter(vals)
}

// ReplayDeadLetter marks an entry as replayed.
func (s *Store) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error {
	key := dlqKey(entryID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: replay exists: %w", err)
	}
	if exists == 0 {
		return orchestrator.ErrDeadLetterNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"replayed_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("orchestrator/redis: replay dead letter: %w", err)
	}
	return nil
}

// PurgeDeadLetters removes entries with FailedAt before the given time.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("orchestrator/redis: purge smembers: %w", err)
	}

	var purged int64
	for _, eID := range ids {
		key := dlqKey(eID)
		failedAtStr, getErr := s.client.HGet(ctx, key, "failed_at").Result()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				continue
			}
			return purged, fmt.Errorf("orchestrator/redis: purge get: %w", getErr)
		}

		failedAt, _ := time.Parse(time.RFC3339Nano, failedAtStr) //nolint:errcheck // best-effort parse from trusted Redis data
		if failedAt.Before(before) {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, dlqIDsKey, eID)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				return purged, fmt.Errorf("orchestrator/redis: purge del: %w", pErr)
			}
			purged++
		}
	}
	return purged, nil
}

// CountDeadLetters returns the total number of entries in the queue.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("orchestrator/redis: count dead letters: %w", err)
	}
	return count, nil
}

// ── helpers ──

func deadLetterToMap(e *deadletter.Entry) (map[string]interface{}, error) {
	m := map[string]interface{}{
		"id":               e.ID.String(),
		"orchestration_id": e.OrchestrationID.String(),
		"assignment_id":    e.AssignmentID.String(),
		"worker_type":      string(e.WorkerType),
		"user_id":          e.UserID,
		"error":            e.Error,
		"retry_count":      strconv.Itoa(e.RetryCount),
		"max_retries":      strconv.Itoa(e.MaxRetries),
		"failed_at":        e.FailedAt.Format(time.RFC3339Nano),
		"created_at":       e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.Data != nil {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("orchestrator/redis: encode dead letter data: %w", err)
		}
		m["data"] = string(data)
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToDeadLetter(m map[string]string) (*deadletter.Entry, error) {
	eID, err := id.ParseDeadLetterID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("orchestrator/redis: parse dead letter id: %w", err)
	}
	orchID, _ := id.ParseOrchestrationID(m["orchestration_id"]) //nolint:errcheck // best-effort parse from trusted Redis data
	asgID, _ := id.ParseAssignmentID(m["assignment_id"])        //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"])             //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"])             //nolint:errcheck // best-effort parse from trusted Redis data

	e := &deadletter.Entry{
		ID:              eID,
		OrchestrationID: orchID,
		AssignmentID:    asgID,
		WorkerType:      worker.Type(m["worker_type"]),
		UserID:          m["user_id"],
		Error:           m["error"],
		RetryCount:      retryCount,
		MaxRetries:      maxRetries,
	}
	if v := m["data"]; v != "" {
		json.Unmarshal([]byte(v), &e.Data) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	e.FailedAt, _ = time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}
