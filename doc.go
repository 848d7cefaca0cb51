// Package orchestrator provides the orchestration core of the EnginEdge
// platform: given an incoming unit of work, it decides which workflow the
// work represents, which backend worker(s) must execute it, and how to
// track that execution to completion, including partial failure and retry.
//
// Orchestrator is designed as a library, not a service. Import it,
// configure a store and a message publisher, and dispatch requests or
// submit multi-worker workflows as ordinary Go calls.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithStore(memStore),
//	    engine.WithPublisher(broker),
//	)
//
// # Architecture
//
// The core follows a composable store pattern where each subsystem
// (request, response, orchestration, worker, event, deadletter) defines
// its own store interface. A single backend implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package orchestrator
