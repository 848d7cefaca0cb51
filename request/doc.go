// Package request defines the Request and Response value objects and
// their store interfaces.
//
// # Request
//
// A [Request] represents one caller-submitted unit of work on the
// single-worker path. Its envelope (type, payload, metadata) is immutable
// after creation; only the dispatch Status advances, and only through
// [Store.UpdateRequestStatus]:
//
//	pending → processing → completed
//	pending → processing → failed
//
// Fields of note:
//   - Type: the capability the work requires (llm-inference, …)
//   - Metadata.Priority: higher values are dispatched first
//   - Metadata.Timeout: per-request execution deadline (zero = engine default)
//   - Metadata.UserID / SessionID: caller identity, copied onto the wire
//
// # Response
//
// A [Response] records the outcome of a Request. A request accumulates one
// or more responses over its life (a pending placeholder, then a final
// success/error); the latest by request ID is authoritative, which is what
// [ResponseStore.LatestResponse] returns.
package request
