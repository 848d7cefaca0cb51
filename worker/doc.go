// Package worker defines the worker entity, its registry store, and the
// liveness monitor.
//
// # Worker Entity
//
// Each backend executor registers itself as a [Worker] with:
//   - a unique [id.WorkerID]
//   - a [Type] naming what it executes (assistant, resume, latex, …)
//   - its declared [Capability] list (supported request types, concurrency)
//   - its [Connection] coordinates
//   - a status: available, busy, healthy, unhealthy, or unknown
//
// Workers send periodic heartbeats. If a heartbeat is not received within
// the configured threshold, the [Monitor] marks the worker unhealthy and
// hands it to the release hook so its in-flight assignments become
// eligible for retry elsewhere.
//
// The dispatcher never mutates a worker beyond its health; routing reads
// IsAvailable, IsHealthy, and CanHandle.
package worker
