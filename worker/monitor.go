package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StaleHook is invoked for every worker the monitor marks unhealthy.
// The engine wires this to release the worker's in-flight assignments
// back to pending so they can be retried elsewhere.
type StaleHook func(ctx context.Context, w *Worker)

// Monitor periodically sweeps the registry for workers that have gone
// silent past the liveness threshold and marks them unhealthy.
type Monitor struct {
	store     Store
	logger    *slog.Logger
	interval  time.Duration
	threshold time.Duration
	onStale   StaleHook

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithSweepInterval sets how often the monitor checks worker liveness.
func WithSweepInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithStaleThreshold sets how long a worker may stay silent before it is
// marked unhealthy.
func WithStaleThreshold(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.threshold = d }
}

// WithStaleHook sets the hook invoked for each worker marked unhealthy.
func WithStaleHook(h StaleHook) MonitorOption {
	return func(m *Monitor) { m.onStale = h }
}

// NewMonitor creates a liveness monitor over the given registry store.
func NewMonitor(store Store, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:     store,
		logger:    logger,
		interval:  10 * time.Second,
		threshold: 30 * time.Second,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sweep goroutine. It returns immediately.
func (m *Monitor) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	m.logger.Info("worker monitor starting",
		slog.Duration("interval", m.interval),
		slog.Duration("threshold", m.threshold),
	)

	m.wg.Add(1)
	go m.sweepLoop()

	return nil
}

// Stop signals the sweep goroutine to stop and waits for it to finish.
func (m *Monitor) Stop(_ context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	return nil
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	ctx := context.Background()

	stale, err := m.store.ReapStaleWorkers(ctx, m.threshold)
	if err != nil {
		m.logger.Error("reap stale workers error", slog.String("error", err.Error()))
		return
	}

	for _, w := range stale {
		if w.Status == StatusUnhealthy {
			// Already marked by an earlier sweep.
			continue
		}
		if updateErr := m.store.UpdateWorkerStatus(ctx, w.ID, StatusUnhealthy); updateErr != nil {
			m.logger.Error("failed to mark worker unhealthy",
				slog.String("worker_id", w.ID.String()),
				slog.String("error", updateErr.Error()),
			)
			continue
		}

		m.logger.Info("marked silent worker unhealthy",
			slog.String("worker_id", w.ID.String()),
			slog.String("worker_type", string(w.Type)),
		)

		if m.onStale != nil {
			m.onStale(ctx, w)
		}
	}
}
