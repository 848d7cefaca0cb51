// Package coordinator implements the worker-coordinator port: per-worker
// load accounting plus per-worker-type admission control (token-bucket
// rate limiting and concurrency caps).
//
// The baseline first-available routing policy never consults load; the
// LeastLoaded selector and the execution pool do. Admission limits apply
// per worker type so a burst of latex compilations cannot starve the
// assistant fleet.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"golang.org/x/time/rate"
)

// Config defines per-worker-type behaviour such as rate limiting and
// concurrency.
type Config struct {
	// WorkerType is the worker type this configuration applies to.
	WorkerType worker.Type

	// MaxConcurrency limits how many requests of this type may be
	// in flight simultaneously. Zero means no type-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained assignments per second for this
	// worker type. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single worker type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// workerState tracks one worker's outstanding assignments.
type workerState struct {
	workerType worker.Type
	active     int
}

// Manager is the in-memory coordinator. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	types   map[worker.Type]*typeState
	workers map[id.WorkerID]*workerState
}

// NewManager creates a Manager with the given worker-type configurations.
// Types not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		types:   make(map[worker.Type]*typeState, len(configs)),
		workers: make(map[id.WorkerID]*workerState),
	}
	for _, cfg := range configs {
		m.types[cfg.WorkerType] = newTypeState(cfg)
	}
	return m
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// AssignRequest records that a request has been handed to a worker,
// checking the worker type's rate limit and concurrency cap first. The
// caller MUST call ReleaseWorker when the work finishes.
func (m *Manager) AssignRequest(_ context.Context, _ *request.Request, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[w.Type]
	if ts != nil {
		if ts.limiter != nil && !ts.limiter.Allow() {
			return fmt.Errorf("coordinator: %s admission rate exceeded: %w",
				w.Type, orchestrator.ErrPoolSaturated)
		}
		if ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
			return fmt.Errorf("coordinator: %s at max concurrency %d: %w",
				w.Type, ts.config.MaxConcurrency, orchestrator.ErrPoolSaturated)
		}
		ts.active++
	}

	ws := m.workers[w.ID]
	if ws == nil {
		ws = &workerState{workerType: w.Type}
		m.workers[w.ID] = ws
	}
	ws.active++

	return nil
}

// ReleaseWorker decrements the outstanding-assignment counters for a
// worker after its current work finishes.
func (m *Manager) ReleaseWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.workers[workerID]
	if ws == nil || ws.active == 0 {
		return nil
	}
	ws.active--

	if ts := m.types[ws.workerType]; ts != nil && ts.active > 0 {
		ts.active--
	}

	return nil
}

// WorkerLoad returns the number of assignments currently outstanding on
// a worker. Unknown workers report zero load.
func (m *Manager) WorkerLoad(_ context.Context, workerID id.WorkerID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws := m.workers[workerID]; ws != nil {
		return ws.active, nil
	}
	return 0, nil
}

// SetTypeConfig dynamically updates (or creates) a worker-type
// configuration. The current active count is preserved.
func (m *Manager) SetTypeConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.types[cfg.WorkerType]
	ts := newTypeState(cfg)
	if existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.WorkerType] = ts
}

// ActiveCount returns the number of in-flight requests for a worker type.
func (m *Manager) ActiveCount(typ worker.Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[typ]; ts != nil {
		return ts.active
	}
	return 0
}
