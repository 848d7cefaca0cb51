// Package orchestration defines the orchestration request aggregate, the
// worker assignment state machine, and their store interface.
//
// # Orchestration Request
//
// A [Request] represents one job on the multi-worker workflow path. It
// embeds timestamps, carries an opaque data payload, and progresses
// through a state machine:
//
//	pending → processing → completed
//	pending → processing → failed
//	pending → cancelled
//
// The aggregate exclusively owns its ordered [Assignment] list: external
// code never mutates the list directly, only through [Request.AddAssignment],
// so that the completion invariants hold.
//
// # Worker Assignment
//
// An [Assignment] is one dispatch of work to one worker type,
// independently retryable:
//
//	pending → processing → completed
//	pending → processing → failed
//	failed  → pending             (via Retry, while CanRetry)
//
// Retry only flips state; it never re-sends. Whatever drives the
// assignment (the saga runner, or reply ingestion) is responsible for
// re-publishing a message after a retry.
package orchestration
