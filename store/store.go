// Package store defines the aggregate persistence interface. Each subsystem
// (request, orchestration, worker, event, deadletter) defines its own store
// interface. The composite Store composes them all. Backends: Postgres,
// MongoDB, Redis, and Memory.
package store

import (
	"context"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, mongo, redis, memory) implements all of them.
type Store interface {
	request.Store
	request.ResponseStore
	orchestration.Store
	worker.Store
	event.Store
	deadletter.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
