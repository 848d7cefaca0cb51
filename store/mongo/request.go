package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
)

// SaveRequest persists a new request.
func (s *Store) SaveRequest(ctx context.Context, r *request.Request) error {
	if _, err := s.db.Collection(colRequests).InsertOne(ctx, toRequestModel(r)); err != nil {
		if isDuplicate(err) {
			return orchestrator.ErrRequestExists
		}
		return fmt.Errorf("orchestrator/mongo: save request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	var m requestModel
	err := s.db.Collection(colRequests).FindOne(ctx, bson.M{"_id": requestID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orchestrator.ErrRequestNotFound
		}
		return nil, fmt.Errorf("orchestrator/mongo: get request: %w", err)
	}
	return fromRequestModel(&m)
}

// UpdateRequestStatus advances the dispatch status of a stored request.
func (s *Store) UpdateRequestStatus(ctx context.Context, requestID id.RequestID, status request.Status) error {
	res, err := s.db.Collection(colRequests).UpdateOne(ctx,
		bson.M{"_id": requestID.String()},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: update request status: %w", err)
	}
	if res.MatchedCount == 0 {
		return orchestrator.ErrRequestNotFound
	}
	return nil
}

// FindPendingRequests returns requests that have not been dispatched yet,
// oldest first.
func (s *Store) FindPendingRequests(ctx context.Context, opts request.ListOpts) ([]*request.Request, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colRequests).Find(ctx,
		bson.M{"status": string(request.StatusPending)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: find pending: %w", err)
	}
	defer cursor.Close(ctx)

	var models []requestModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: find pending decode: %w", err)
	}

	requests := make([]*request.Request, 0, len(models))
	for i := range models {
		r, convErr := fromRequestModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("orchestrator/mongo: find pending convert: %w", convErr)
		}
		requests = append(requests, r)
	}
	return requests, nil
}

// ──────────────────────────────────────────────────
// Response Store
// ──────────────────────────────────────────────────

// SaveResponse persists a response.
func (s *Store) SaveResponse(ctx context.Context, r *request.Response) error {
	if _, err := s.db.Collection(colResponses).InsertOne(ctx, toResponseModel(r)); err != nil {
		return fmt.Errorf("orchestrator/mongo: save response: %w", err)
	}
	return nil
}

// FindResponsesByRequest returns every response recorded for a request,
// oldest first.
func (s *Store) FindResponsesByRequest(ctx context.Context, requestID id.RequestID) ([]*request.Response, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(colResponses).Find(ctx,
		bson.M{"request_id": requestID.String()}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: find responses: %w", err)
	}
	defer cursor.Close(ctx)

	var models []responseModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: find responses decode: %w", err)
	}

	responses := make([]*request.Response, 0, len(models))
	for i := range models {
		r, convErr := fromResponseModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("orchestrator/mongo: find responses convert: %w", convErr)
		}
		responses = append(responses, r)
	}
	return responses, nil
}

// LatestResponse returns the most recent response for a request.
func (s *Store) LatestResponse(ctx context.Context, requestID id.RequestID) (*request.Response, error) {
	findOpts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m responseModel
	err := s.db.Collection(colResponses).FindOne(ctx,
		bson.M{"request_id": requestID.String()}, findOpts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orchestrator.ErrResponseNotFound
		}
		return nil, fmt.Errorf("orchestrator/mongo: latest response: %w", err)
	}
	return fromResponseModel(&m)
}
