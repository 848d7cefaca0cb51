// Package dispatcher implements the dispatch engine — routing a request
// to an eligible worker, publishing the dispatch message, ingesting the
// asynchronous worker reply, and driving the assignment retry state
// machine for multi-worker orchestrations.
//
// Two entry points:
//
//   - [Dispatcher.Execute] handles the single-request path: persist,
//     route, publish, return a pending response. Routing and publish
//     failures are recorded as error responses, never dropped.
//   - [Dispatcher.OnWorkerReply] ingests a worker reply message and
//     resolves the originating request by correlation ID.
//
// The [Executor] drives assignment outcomes on the orchestration path:
// completions cascade to the owning request when every assignment is
// terminal; failures are re-dispatched with backoff while retry budget
// remains and moved to the dead letter store when it runs out.
package dispatcher
