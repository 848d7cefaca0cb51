// Package deadletter provides the dead letter queue for worker
// assignments that have exhausted their retry budget. It supports
// inspection, replay, and purging.
//
// When an assignment fails and CanRetry is false, reply ingestion calls
// [Service.Push] to move it into the dead letter queue. The orchestration
// data, error message, and retry counts are preserved for debugging.
//
// # Entry
//
// An [Entry] captures:
//   - OrchestrationID / AssignmentID / WorkerType: original identity
//   - Data: the orchestration data payload at time of failure
//   - Error: the final error message
//   - RetryCount / MaxRetries: the exhausted retry budget
//   - FailedAt: when the terminal failure occurred
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Replay
//
// Replaying an entry appends a fresh pending assignment for the same
// worker type to the original orchestration request and reopens the
// request for processing. Replay sets ReplayedAt on the entry; the
// saga runner picks the reopened request up for re-dispatch.
package deadletter
