package redis

// Redis key naming conventions for orchestrator data.
// All keys are prefixed with "orch:" to avoid collisions.

const keyPrefix = "orch:"

// ── Request keys ──

// requestKey returns the key for a request entity: orch:request:{id}
func requestKey(id string) string { return keyPrefix + "request:" + id }

// requestIDsKey is the Set tracking all request IDs for enumeration.
const requestIDsKey = keyPrefix + "request_ids"

// ── Response keys ──

// responseKey returns the key for a response entity: orch:response:{id}
func responseKey(id string) string { return keyPrefix + "response:" + id }

// responseIndexKey returns the Set key tracking responses for a request.
func responseIndexKey(requestID string) string {
	return keyPrefix + "response_idx:" + requestID
}

// ── Orchestration keys ──

// orchestrationKey returns the key for an orchestration aggregate,
// stored as a JSON string: orch:orchestration:{id}
func orchestrationKey(id string) string { return keyPrefix + "orchestration:" + id }

// orchestrationIDsKey is the Set tracking all orchestration IDs.
const orchestrationIDsKey = keyPrefix + "orchestration_ids"

// idempotencyKey maps caller idempotency keys to orchestration IDs.
const idempotencyHashKey = keyPrefix + "idempotency"

// ── Worker keys ──

// workerKey returns the key for a worker entity: orch:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"

// ── Event keys ──

// eventKey returns the key for an event entity: orch:event:{id}
func eventKey(id string) string { return keyPrefix + "event:" + id }

// eventStreamKey returns the Stream key for an event name: orch:events:{name}
func eventStreamKey(name string) string { return keyPrefix + "events:" + name }

// ── Dead-letter keys ──

// dlqKey returns the key for a dead-letter entry: orch:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all dead-letter entry IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"
