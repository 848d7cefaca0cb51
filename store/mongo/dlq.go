package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// PushDeadLetter adds an exhausted assignment entry to the queue.
func (s *Store) PushDeadLetter(ctx context.Context, entry *deadletter.Entry) error {
	if _, err := s.db.Collection(colDeadLetters).InsertOne(ctx, toDeadLetterModel(entry)); err != nil {
		return fmt.Errorf("orchestrator/mongo: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns entries matching the given options, most
// recently failed first.
func (s *Store) ListDeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	filter := bson.M{}
	if opts.WorkerType != "" {
		filter["worker_type"] = string(opts.WorkerType)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colDeadLetters).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: list dead letters: %w", err)
	}
	defer cursor.Close(ctx)

	var models []deadLetterModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: list dead letters decode: %w", err)
	}

	entries := make([]*deadletter.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromDeadLetterModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("orchestrator/mongo: list dead letters convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDeadLetter retrieves an entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	var m deadLetterModel
	err := s.db.Collection(colDeadLetters).FindOne(ctx, bson.M{"_id": entryID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orchestrator.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("orchestrator/mongo: get dead letter: %w", err)
	}
	return fromDeadLetterModel(&m)
}

// ReplayDeadLetter marks an entry as replayed.
func (s *Store) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error {
	res, err := s.db.Collection(colDeadLetters).UpdateOne(ctx,
		bson.M{"_id": entryID.String()},
		bson.M{"$set": bson.M{"replayed_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("orchestrator/mongo: replay dead letter: %w", err)
	}
	if res.MatchedCount == 0 {
		return orchestrator.ErrDeadLetterNotFound
	}
	return nil
}

// PurgeDeadLetters removes entries with FailedAt before the given time.
// Returns the number of entries removed.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colDeadLetters).DeleteMany(ctx,
		bson.M{"failed_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("orchestrator/mongo: purge dead letters: %w", err)
	}
	return res.DeletedCount, nil
}

// CountDeadLetters returns the total number of entries in the queue.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	count, err := s.db.Collection(colDeadLetters).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("orchestrator/mongo: count dead letters: %w", err)
	}
	return count, nil
}
