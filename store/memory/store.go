// Package memory provides a fully in-memory store backend. It is the
// default store for development and unit testing; nothing survives a
// restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ request.Store         = (*Store)(nil)
	_ request.ResponseStore = (*Store)(nil)
	_ orchestration.Store   = (*Store)(nil)
	_ worker.Store          = (*Store)(nil)
	_ event.Store           = (*Store)(nil)
	_ deadletter.Store      = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	requests       map[string]*request.Request
	responses      map[string][]*request.Response // key: request ID
	orchestrations map[string][]byte              // JSON snapshots
	workers        map[string]*worker.Worker
	events         map[string]*event.Event
	deadletters    map[string]*deadletter.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		requests:       make(map[string]*request.Request),
		responses:      make(map[string][]*request.Response),
		orchestrations: make(map[string][]byte),
		workers:        make(map[string]*worker.Worker),
		events:         make(map[string]*event.Event),
		deadletters:    make(map[string]*deadletter.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Request Store
// ──────────────────────────────────────────────────

// SaveRequest persists a new request.
func (m *Store) SaveRequest(_ context.Context, r *request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.requests[r.ID.String()] = &cp
	return nil
}

// GetRequest retrieves a request by ID.
func (m *Store) GetRequest(_ context.Context, requestID id.RequestID) (*request.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[requestID.String()]
	if !ok {
		return nil, orchestrator.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRequestStatus advances the dispatch status of a stored request.
func (m *Store) UpdateRequestStatus(_ context.Context, requestID id.RequestID, status request.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID.String()]
	if !ok {
		return orchestrator.ErrRequestNotFound
	}
	r.Status = status
	r.Touch()
	return nil
}

// FindPendingRequests returns requests that have not been dispatched yet,
// oldest first.
func (m *Store) FindPendingRequests(_ context.Context, opts request.ListOpts) ([]*request.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*request.Request
	for _, r := range m.requests {
		if r.Status == request.StatusPending {
			cp := *r
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return paginate(pending, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Response Store
// ──────────────────────────────────────────────────

// SaveResponse persists a response.
func (m *Store) SaveResponse(_ context.Context, r *request.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.RequestID.String()
	cp := *r
	m.responses[key] = append(m.responses[key], &cp)
	return nil
}

// FindResponsesByRequest returns every response recorded for a request,
// oldest first.
func (m *Store) FindResponsesByRequest(_ context.Context, requestID id.RequestID) ([]*request.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.responses[requestID.String()]
	out := make([]*request.Response, 0, len(stored))
	for _, r := range stored {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// LatestResponse returns the most recent response for a request.
func (m *Store) LatestResponse(_ context.Context, requestID id.RequestID) (*request.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.responses[requestID.String()]
	if len(stored) == 0 {
		return nil, orchestrator.ErrResponseNotFound
	}
	latest := stored[0]
	for _, r := range stored[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	cp := *latest
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Orchestration Store
// ──────────────────────────────────────────────────
//
// Orchestration requests own mutable assignment state, so the memory
// store keeps JSON snapshots. Readers and the writer never share
// pointers.

// SaveOrchestration persists a new orchestration request.
func (m *Store) SaveOrchestration(_ context.Context, r *orchestration.Request) error {
	return m.snapshotOrchestration(r)
}

// UpdateOrchestration persists changes to an existing request and its
// owned assignments.
func (m *Store) UpdateOrchestration(_ context.Context, r *orchestration.Request) error {
	m.mu.RLock()
	_, ok := m.orchestrations[r.ID.String()]
	m.mu.RUnlock()
	if !ok {
		return orchestrator.ErrOrchestrationNotFound
	}
	return m.snapshotOrchestration(r)
}

// GetOrchestration retrieves an orchestration request by ID.
func (m *Store) GetOrchestration(_ context.Context, requestID id.OrchestrationID) (*orchestration.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.orchestrations[requestID.String()]
	if !ok {
		return nil, orchestrator.ErrOrchestrationNotFound
	}
	return decodeOrchestration(raw)
}

// FindByIdempotencyKey returns the request previously submitted with the
// given key.
func (m *Store) FindByIdempotencyKey(_ context.Context, key string) (*orchestration.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, raw := range m.orchestrations {
		r, err := decodeOrchestration(raw)
		if err != nil {
			return nil, err
		}
		if r.IdempotencyKey == key {
			return r, nil
		}
	}
	return nil, orchestrator.ErrOrchestrationNotFound
}

// ListOrchestrationsByStatus returns requests in the given state, oldest
// first.
func (m *Store) ListOrchestrationsByStatus(_ context.Context, status orchestration.Status, opts orchestration.ListOpts) ([]*orchestration.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*orchestration.Request
	for _, raw := range m.orchestrations {
		r, err := decodeOrchestration(raw)
		if err != nil {
			return nil, err
		}
		if r.Status == status {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return paginate(matched, opts.Offset, opts.Limit), nil
}

func (m *Store) snapshotOrchestration(r *orchestration.Request) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("memory: encode orchestration %s: %w", r.ID, err)
	}
	m.mu.Lock()
	m.orchestrations[r.ID.String()] = raw
	m.mu.Unlock()
	return nil
}

func decodeOrchestration(raw []byte) (*orchestration.Request, error) {
	var r orchestration.Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("memory: decode orchestration: %w", err)
	}
	return &r, nil
}

// ──────────────────────────────────────────────────
// Worker Store
// ──────────────────────────────────────────────────

// RegisterWorker adds a new worker to the registry.
func (m *Store) RegisterWorker(_ context.Context, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, ok := m.workers[key]; ok {
		return orchestrator.ErrWorkerAlreadyExists
	}
	m.workers[key] = copyWorker(w)
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerID.String()
	if _, ok := m.workers[key]; !ok {
		return orchestrator.ErrWorkerNotFound
	}
	delete(m.workers, key)
	return nil
}

// GetWorker retrieves a worker by ID.
func (m *Store) GetWorker(_ context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil, orchestrator.ErrWorkerNotFound
	}
	return copyWorker(w), nil
}

// FindWorkersByType returns all workers of the given type.
func (m *Store) FindWorkersByType(_ context.Context, typ worker.Type) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*worker.Worker
	for _, w := range m.workers {
		if w.Type == typ {
			matched = append(matched, copyWorker(w))
		}
	}
	sortWorkers(matched)
	return matched, nil
}

// FindAvailableWorkers returns workers currently able to accept work.
func (m *Store) FindAvailableWorkers(_ context.Context) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var available []*worker.Worker
	for _, w := range m.workers {
		if w.IsAvailable() {
			available = append(available, copyWorker(w))
		}
	}
	sortWorkers(available)
	return available, nil
}

// UpdateWorker persists changes to an existing worker.
func (m *Store) UpdateWorker(_ context.Context, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, ok := m.workers[key]; !ok {
		return orchestrator.ErrWorkerNotFound
	}
	m.workers[key] = copyWorker(w)
	return nil
}

// UpdateWorkerStatus sets the status and refreshes the health-check
// timestamp for a worker.
func (m *Store) UpdateWorkerStatus(_ context.Context, workerID id.WorkerID, status worker.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return orchestrator.ErrWorkerNotFound
	}
	w.UpdateHealth(status)
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return orchestrator.ErrWorkerNotFound
	}
	now := time.Now().UTC()
	w.LastHealthCheck = &now
	w.Touch()
	return nil
}

// ReapStaleWorkers returns workers whose last heartbeat is older than the
// given threshold.
func (m *Store) ReapStaleWorkers(_ context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*worker.Worker
	for _, w := range m.workers {
		seen := w.CreatedAt
		if w.LastHealthCheck != nil {
			seen = *w.LastHealthCheck
		}
		if seen.Before(cutoff) {
			stale = append(stale, copyWorker(w))
		}
	}
	sortWorkers(stale)
	return stale, nil
}

func copyWorker(w *worker.Worker) *worker.Worker {
	cp := *w
	cp.Capabilities = append([]worker.Capability(nil), w.Capabilities...)
	if w.LastHealthCheck != nil {
		t := *w.LastHealthCheck
		cp.LastHealthCheck = &t
	}
	return &cp
}

func sortWorkers(ws []*worker.Worker) {
	sort.Slice(ws, func(i, j int) bool {
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// PublishEvent persists a new event and makes it available for
// subscribers.
func (m *Store) PublishEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	m.events[evt.ID.String()] = &cp
	return nil
}

// SubscribeEvent waits for an unacked event matching the given name.
// Returns nil if no event is found within the timeout.
func (m *Store) SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		m.mu.RLock()
		for _, evt := range m.events {
			if evt.Name == name && !evt.Acked {
				cp := *evt
				m.mu.RUnlock()
				return &cp, nil
			}
		}
		m.mu.RUnlock()

		// Brief sleep to avoid busy-waiting.
		time.Sleep(10 * time.Millisecond)
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (m *Store) AckEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return orchestrator.ErrEventNotFound
	}
	evt.Acked = true
	return nil
}

// ──────────────────────────────────────────────────
// Dead-Letter Store
// ──────────────────────────────────────────────────

// PushDeadLetter adds an exhausted assignment entry to the queue.
func (m *Store) PushDeadLetter(_ context.Context, entry *deadletter.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.deadletters[entry.ID.String()] = &cp
	return nil
}

// ListDeadLetters returns entries matching the given options, most
// recently failed first.
func (m *Store) ListDeadLetters(_ context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*deadletter.Entry
	for _, e := range m.deadletters {
		if opts.WorkerType != "" && e.WorkerType != opts.WorkerType {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})
	return paginate(entries, opts.Offset, opts.Limit), nil
}

// GetDeadLetter retrieves an entry by ID.
func (m *Store) GetDeadLetter(_ context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.deadletters[entryID.String()]
	if !ok {
		return nil, orchestrator.ErrDeadLetterNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDeadLetter marks an entry as replayed.
func (m *Store) ReplayDeadLetter(_ context.Context, entryID id.DeadLetterID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.deadletters[entryID.String()]
	if !ok {
		return orchestrator.ErrDeadLetterNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDeadLetters removes entries with FailedAt before the given time.
func (m *Store) PurgeDeadLetters(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, e := range m.deadletters {
		if e.FailedAt.Before(before) {
			delete(m.deadletters, key)
			removed++
		}
	}
	return removed, nil
}

// CountDeadLetters returns the total number of entries in the queue.
func (m *Store) CountDeadLetters(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.deadletters)), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// paginate applies offset/limit to a sorted slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
