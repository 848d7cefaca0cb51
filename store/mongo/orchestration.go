package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
)

// SaveOrchestration persists a new orchestration request. The aggregate
// is stored whole, assignments embedded.
func (s *Store) SaveOrchestration(ctx context.Context, r *orchestration.Request) error {
	if _, err := s.db.Collection(colOrchestrations).InsertOne(ctx, toOrchestrationModel(r)); err != nil {
		if isDuplicate(err) {
			return orchestrator.ErrDuplicateSubmission
		}
		return fmt.Errorf("orchestrator/mongo: save orchestration: %w", err)
	}
	return nil
}

// GetOrchestration retrieves an orchestration request by ID.
func (s *Store) GetOrchestration(ctx context.Context, requestID id.OrchestrationID) (*orchestration.Request, error) {
	var m orchestrationModel
	err := s.db.Collection(colOrchestrations).FindOne(ctx, bson.M{"_id": requestID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orchestrator.ErrOrchestrationNotFound
		}
		return nil, fmt.Errorf("orchestrator/mongo: get orchestration: %w", err)
	}
	return fromOrchestrationModel(&m)
}

// UpdateOrchestration persists changes to an existing request and its
// owned assignments.
func (s *Store) UpdateOrchestration(ctx context.Context, r *orchestration.Request) error {
	res, err := s.db.Collection(colOrchestrations).ReplaceOne(ctx,
		bson.M{"_id": r.ID.String()}, toOrchestrationModel(r))
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: update orchestration: %w", err)
	}
	if res.MatchedCount == 0 {
		return orchestrator.ErrOrchestrationNotFound
	}
	return nil
}

// FindByIdempotencyKey returns the request previously submitted with the
// given key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*orchestration.Request, error) {
	var m orchestrationModel
	err := s.db.Collection(colOrchestrations).FindOne(ctx, bson.M{"idempotency_key": key}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orchestrator.ErrOrchestrationNotFound
		}
		return nil, fmt.Errorf("orchestrator/mongo: idempotency lookup: %w", err)
	}
	return fromOrchestrationModel(&m)
}

// ListOrchestrationsByStatus returns requests in the given state, oldest
// first.
func (s *Store) ListOrchestrationsByStatus(ctx context.Context, status orchestration.Status, opts orchestration.ListOpts) ([]*orchestration.Request, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colOrchestrations).Find(ctx,
		bson.M{"status": string(status)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: list orchestrations: %w", err)
	}
	defer cursor.Close(ctx)

	var models []orchestrationModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: list orchestrations decode: %w", err)
	}

	requests := make([]*orchestration.Request, 0, len(models))
	for i := range models {
		r, convErr := fromOrchestrationModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("orchestrator/mongo: list orchestrations convert: %w", convErr)
		}
		requests = append(requests, r)
	}
	return requests, nil
}
