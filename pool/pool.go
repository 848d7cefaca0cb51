// Package pool provides the worker-side execution pool: a fixed number
// of execution units draining a priority task queue. Each unit carries
// its own circuit breaker, so a unit that keeps failing stops taking
// tasks until its recovery cooldown elapses and a probe task succeeds.
//
// The pool sits below the dispatch layer: the orchestrator reaches a
// worker only through the message bus, and a worker process embeds a
// Pool to bound the concurrency of the work it accepted.
package pool

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

const (
	// DefaultTaskTimeout bounds tasks that carry no timeout of their own.
	DefaultTaskTimeout = 5 * time.Minute

	// DefaultQueueCapacity is the maximum number of queued tasks before
	// submissions are rejected as saturated.
	DefaultQueueCapacity = 1024

	// DefaultFailureThreshold is the consecutive-failure count that opens
	// a unit's circuit.
	DefaultFailureThreshold = 5

	// DefaultRecoveryCooldown is how long an open circuit stays open
	// before the unit takes a probe task.
	DefaultRecoveryCooldown = 30 * time.Second
)

// pending pairs a queued task with the channel its result is delivered on.
type pending struct {
	task  *Task
	done  chan *Result
	index int
}

// taskQueue is a max-heap ordered by priority, submission time on ties.
type taskQueue []*pending

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].task.Priority != q[j].task.Priority {
		return q[i].task.Priority > q[j].task.Priority
	}
	return q[i].task.EnqueuedAt.Before(q[j].task.EnqueuedAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	pt := x.(*pending)
	pt.index = len(*q)
	*q = append(*q, pt)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	pt := old[n-1]
	old[n-1] = nil
	pt.index = -1
	*q = old[:n-1]
	return pt
}

// unit is one execution goroutine with its own circuit breaker state.
// All fields are guarded by the pool mutex.
type unit struct {
	index     int
	failures  int
	open      bool
	openUntil time.Time
}

// blockedUntil returns the instant before which the unit must not take
// tasks, zero when it is closed or due for a probe.
func (u *unit) blockedUntil(now time.Time) time.Time {
	if u.open && now.Before(u.openUntil) {
		return u.openUntil
	}
	return time.Time{}
}

// record updates circuit state after one execution.
func (u *unit) record(ok bool, threshold int, cooldown time.Duration) {
	if ok {
		u.failures = 0
		u.open = false
		return
	}
	u.failures++
	if u.open || u.failures >= threshold {
		u.open = true
		u.openUntil = time.Now().Add(cooldown)
	}
}

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateDraining
	stateStopping
	stateStopped
)

// Status is a point-in-time snapshot of the pool.
type Status struct {
	Size         int
	QueueDepth   int
	Active       int
	HealthyUnits int
	Completed    uint64
	Failed       uint64
	Running      bool
}

// Pool is a fixed-size priority execution pool.
type Pool struct {
	registry         *Registry
	size             int
	queueCap         int
	limiter          *rate.Limiter
	failureThreshold int
	recoveryCooldown time.Duration
	defaultTimeout   time.Duration
	logger           *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     taskQueue
	state     poolState
	active    int
	completed uint64
	failed    uint64
	units     []*unit
	cancels   map[id.TaskID]context.CancelFunc

	wg sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSize sets the number of execution units. Defaults to the number
// of CPU cores.
func WithSize(n int) PoolOption {
	return func(p *Pool) { p.size = n }
}

// WithQueueCapacity sets the maximum queued-task backlog.
func WithQueueCapacity(n int) PoolOption {
	return func(p *Pool) { p.queueCap = n }
}

// WithRateLimit throttles task admission.
func WithRateLimit(limit rate.Limit, burst int) PoolOption {
	return func(p *Pool) { p.limiter = rate.NewLimiter(limit, burst) }
}

// WithFailureThreshold sets the consecutive-failure count that opens a
// unit's circuit.
func WithFailureThreshold(n int) PoolOption {
	return func(p *Pool) { p.failureThreshold = n }
}

// WithRecoveryCooldown sets how long an open circuit waits before a
// probe task.
func WithRecoveryCooldown(d time.Duration) PoolOption {
	return func(p *Pool) { p.recoveryCooldown = d }
}

// WithDefaultTimeout sets the timeout applied to tasks without one.
func WithDefaultTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.defaultTimeout = d }
}

// WithPoolLogger sets the structured logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// New creates a pool. Call Initialize to start the execution units.
func New(registry *Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		registry:         registry,
		size:             runtime.NumCPU(),
		queueCap:         DefaultQueueCapacity,
		failureThreshold: DefaultFailureThreshold,
		recoveryCooldown: DefaultRecoveryCooldown,
		defaultTimeout:   DefaultTaskTimeout,
		logger:           slog.Default(),
		cancels:          make(map[id.TaskID]context.CancelFunc),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	if p.size < 1 {
		p.size = 1
	}
	return p
}

// Initialize starts the execution units. Idempotent while running.
func (p *Pool) Initialize(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateRunning, stateDraining:
		return nil
	case stateStopping, stateStopped:
		return orchestrator.ErrPoolClosed
	}

	p.state = stateRunning
	p.units = make([]*unit, p.size)
	for i := range p.units {
		u := &unit{index: i}
		p.units[i] = u
		p.wg.Add(1)
		go p.runUnit(u)
	}

	p.logger.Info("execution pool started",
		slog.Int("size", p.size),
		slog.Int("queue_capacity", p.queueCap),
	)
	return nil
}

// Execute submits one task and blocks until its result. The returned
// error reports pool-level failures (closed, saturated, cancelled
// submission); handler failures arrive inside the Result.
func (p *Pool) Execute(ctx context.Context, task *Task) (*Result, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pool: admission wait: %w", err)
		}
	}

	pt, err := p.enqueue(task)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-pt.done:
		return res, nil
	case <-ctx.Done():
		// The task may still run; its result is discarded.
		p.dequeue(pt)
		return nil, fmt.Errorf("pool: await task %s: %w", task.ID, ctx.Err())
	}
}

// ExecuteBatch submits tasks concurrently and returns results in
// submission order. The first pool-level error cancels the remaining
// waits.
func (p *Pool) ExecuteBatch(ctx context.Context, tasks []*Task) ([]*Result, error) {
	results := make([]*Result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			res, err := p.Execute(gctx, task)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Status returns a snapshot of queue depth, activity, and unit health.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := 0
	now := time.Now()
	for _, u := range p.units {
		if u.blockedUntil(now).IsZero() {
			healthy++
		}
	}
	return Status{
		Size:         p.size,
		QueueDepth:   len(p.queue),
		Active:       p.active,
		HealthyUnits: healthy,
		Completed:    p.completed,
		Failed:       p.failed,
		Running:      p.state == stateRunning,
	}
}

// IsHealthy reports whether the pool is running with at least one unit
// able to take tasks.
func (p *Pool) IsHealthy() bool {
	s := p.Status()
	return s.Running && s.HealthyUnits > 0
}

// Drain blocks until all queued and in-flight tasks complete. New
// submissions are rejected while draining; the pool resumes accepting
// work afterwards.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return orchestrator.ErrPoolClosed
	}
	p.state = stateDraining
	p.mu.Unlock()

	err := p.awaitIdle(ctx)

	p.mu.Lock()
	if p.state == stateDraining {
		p.state = stateRunning
	}
	p.mu.Unlock()
	return err
}

// Shutdown stops the pool gracefully: no new submissions, queued and
// in-flight tasks are given until the context deadline to finish, then
// the remainder is cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state == stateStopped || p.state == stateStopping {
		p.mu.Unlock()
		return nil
	}
	p.state = stateStopping
	p.cond.Broadcast()
	p.mu.Unlock()

	p.logger.Info("execution pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("execution pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("execution pool shutdown timed out, forcing")
		p.ForceShutdown()
	}

	p.mu.Lock()
	p.state = stateStopped
	p.mu.Unlock()
	return nil
}

// ForceShutdown cancels every in-flight task, rejects everything still
// queued, and stops the units immediately.
func (p *Pool) ForceShutdown() {
	p.mu.Lock()
	p.state = stateStopped
	rejected := p.queue
	p.queue = nil
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, pt := range rejected {
		pt.done <- &Result{
			TaskID: pt.task.ID,
			Name:   pt.task.Name,
			Err:    orchestrator.ErrPoolClosed,
		}
	}

	p.wg.Wait()
	p.logger.Warn("execution pool force stopped", slog.Int("rejected", len(rejected)))
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

func (p *Pool) enqueue(task *Task) (*pending, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning {
		if p.state == stateDraining {
			return nil, fmt.Errorf("pool: draining: %w", orchestrator.ErrPoolClosed)
		}
		return nil, orchestrator.ErrPoolClosed
	}
	if len(p.queue) >= p.queueCap {
		return nil, orchestrator.ErrPoolSaturated
	}

	pt := &pending{task: task, done: make(chan *Result, 1)}
	heap.Push(&p.queue, pt)
	p.cond.Signal()
	return pt, nil
}

// dequeue removes an abandoned submission if it has not been picked up.
func (p *Pool) dequeue(pt *pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pt.index >= 0 && pt.index < len(p.queue) && p.queue[pt.index] == pt {
		heap.Remove(&p.queue, pt.index)
	}
}

// next blocks until a task is available for the unit or the pool is
// shutting down. Returns nil when the unit should exit.
func (p *Pool) next(u *unit) *pending {
	p.mu.Lock()
	for {
		if p.state == stateStopped {
			p.mu.Unlock()
			return nil
		}

		if len(p.queue) > 0 {
			if until := u.blockedUntil(time.Now()); !until.IsZero() {
				// Circuit open: sit out without holding the queue.
				p.mu.Unlock()
				p.sleepUntil(until)
				p.mu.Lock()
				continue
			}
			pt := heap.Pop(&p.queue).(*pending)
			p.active++
			p.mu.Unlock()
			return pt
		}

		if p.state == stateStopping {
			p.mu.Unlock()
			return nil
		}
		p.cond.Wait()
	}
}

func (p *Pool) sleepUntil(t time.Time) {
	d := time.Until(t)
	if d > 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	if d > 0 {
		time.Sleep(d)
	}
}

func (p *Pool) runUnit(u *unit) {
	defer p.wg.Done()

	for {
		pt := p.next(u)
		if pt == nil {
			return
		}

		res := p.runTask(pt.task)

		p.mu.Lock()
		p.active--
		u.record(res.Err == nil, p.failureThreshold, p.recoveryCooldown)
		if res.Err == nil {
			p.completed++
		} else {
			p.failed++
			if u.open {
				p.logger.Warn("execution unit circuit open",
					slog.Int("unit", u.index),
					slog.Int("consecutive_failures", u.failures),
				)
			}
		}
		p.cond.Broadcast()
		p.mu.Unlock()

		pt.done <- res
	}
}

func (p *Pool) runTask(task *Task) *Result {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	p.trackCancel(task.ID, cancel)
	defer func() {
		p.untrackCancel(task.ID)
		cancel()
	}()

	start := time.Now()
	out, err := p.invoke(ctx, task)
	return &Result{
		TaskID:  task.ID,
		Name:    task.Name,
		Output:  out,
		Err:     err,
		Elapsed: time.Since(start),
	}
}

func (p *Pool) invoke(ctx context.Context, task *Task) (out any, err error) {
	handler, ok := p.registry.Get(task.Name)
	if !ok {
		return nil, fmt.Errorf("pool: no handler registered for task %q", task.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic executing task %s: %v", task.ID, r)
		}
	}()

	return handler(ctx, task.Payload)
}

// awaitIdle blocks until the queue is empty and no task is in flight.
func (p *Pool) awaitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		p.mu.Lock()
		for len(p.queue) > 0 || p.active > 0 {
			p.cond.Wait()
		}
		p.mu.Unlock()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		// Wake the waiter so its goroutine exits eventually.
		p.cond.Broadcast()
		return fmt.Errorf("pool: drain: %w", ctx.Err())
	}
}

func (p *Pool) trackCancel(taskID id.TaskID, cancel context.CancelFunc) {
	p.mu.Lock()
	p.cancels[taskID] = cancel
	p.mu.Unlock()
}

func (p *Pool) untrackCancel(taskID id.TaskID) {
	p.mu.Lock()
	delete(p.cancels, taskID)
	p.mu.Unlock()
}
