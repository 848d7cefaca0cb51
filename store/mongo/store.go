package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Collection name constants.
const (
	colRequests       = "orch_requests"
	colResponses      = "orch_responses"
	colOrchestrations = "orch_orchestrations"
	colWorkers        = "orch_workers"
	colEvents         = "orch_events"
	colDeadLetters    = "orch_dead_letters"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ request.Store         = (*Store)(nil)
	_ request.ResponseStore = (*Store)(nil)
	_ orchestration.Store   = (*Store)(nil)
	_ worker.Store          = (*Store)(nil)
	_ event.Store           = (*Store)(nil)
	_ deadletter.Store      = (*Store)(nil)
)

// Store implements the composite store.Store interface backed by MongoDB.
// The caller owns the client lifecycle; Store never closes it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store. The caller owns the client lifecycle —
// the Store will not close it on Close().
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *mongo.Database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all orchestrator collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("orchestrator/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicate returns true when err is a unique-index violation.
func isDuplicate(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRequests: {
			// Pending scan index: status + created_at.
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
		},
		colResponses: {
			// Per-request lookup, newest last.
			{Keys: bson.D{
				{Key: "request_id", Value: 1},
				{Key: "created_at", Value: 1},
			}},
		},
		colOrchestrations: {
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			}},
			// Sparse unique index for duplicate submission detection.
			{
				Keys: bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetSparse(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colWorkers: {
			{Keys: bson.D{{Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			// Heartbeat index for reaping stale workers.
			{Keys: bson.D{{Key: "last_health_check", Value: 1}}},
		},
		colEvents: {
			// Pending events index for subscribe.
			{Keys: bson.D{
				{Key: "name", Value: 1},
				{Key: "acked", Value: 1},
				{Key: "created_at", Value: 1},
			}},
		},
		colDeadLetters: {
			{Keys: bson.D{
				{Key: "worker_type", Value: 1},
				{Key: "failed_at", Value: -1},
			}},
		},
	}
}
