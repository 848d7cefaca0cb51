// Package saga sequences the assignments of a multi-worker orchestration
// request. The default mode is sequential await: dispatch one assignment,
// block until its terminal event arrives on the bus, then dispatch the
// next. Workflows whose steps are independent can opt into parallel
// execution, which fans the assignments out through an errgroup.
//
// The runner owns dispatch and sequencing only. State transitions
// (processing, completed, failed, retry scheduling, dead-lettering) are
// the assignment Executor's job, driven by worker replies; the runner
// observes them through the event bus and the orchestration store.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/backoff"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/dispatcher"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/router"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

const (
	// DefaultPollInterval bounds each blocking Subscribe call so the
	// runner can notice retried assignments between terminal events.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultStepTimeout bounds the total wait for one assignment to
	// reach a terminal state, across all of its retries.
	DefaultStepTimeout = 10 * time.Minute
)

// Runner executes an orchestration request's assignments against live
// workers.
type Runner struct {
	orchestrations orchestration.Store
	workers        worker.Store
	publisher      message.Publisher
	router         *router.Router
	executor       *dispatcher.Executor
	bus            *event.Bus
	backoff        backoff.Strategy
	pollInterval   time.Duration
	stepTimeout    time.Duration
	parallel       bool
	logger         *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBackoff sets the delay strategy applied between worker-selection
// attempts for a step.
func WithBackoff(s backoff.Strategy) Option {
	return func(r *Runner) { r.backoff = s }
}

// WithPollInterval sets how long each bus subscription blocks before the
// runner re-checks assignment state.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollInterval = d }
}

// WithStepTimeout bounds how long one assignment may take to reach a
// terminal state, retries included.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) { r.stepTimeout = d }
}

// WithParallel runs independent assignments concurrently instead of in
// pipeline order.
func WithParallel() Option {
	return func(r *Runner) { r.parallel = true }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a saga runner.
func NewRunner(
	orchestrations orchestration.Store,
	workers worker.Store,
	publisher message.Publisher,
	rt *router.Router,
	executor *dispatcher.Executor,
	bus *event.Bus,
	opts ...Option,
) *Runner {
	r := &Runner{
		orchestrations: orchestrations,
		workers:        workers,
		publisher:      publisher,
		router:         rt,
		executor:       executor,
		bus:            bus,
		backoff:        backoff.DefaultStrategy(),
		pollInterval:   DefaultPollInterval,
		stepTimeout:    DefaultStepTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every assignment of the orchestration request and returns
// once the request is terminal. Sequential mode stops at the first
// assignment that fails terminally; parallel mode lets in-flight siblings
// finish before reporting the first failure.
func (r *Runner) Run(ctx context.Context, oreq *orchestration.Request) error {
	assignments := oreq.Assignments()
	if len(assignments) == 0 {
		return fmt.Errorf("saga %s: %w", oreq.ID, orchestrator.ErrAssignmentNotFound)
	}

	r.logger.Info("saga started",
		slog.String("orchestration_id", oreq.ID.String()),
		slog.String("workflow", string(oreq.Workflow)),
		slog.Int("assignments", len(assignments)),
		slog.Bool("parallel", r.parallel),
	)

	if r.parallel {
		return r.runParallel(ctx, oreq, assignments)
	}

	for _, a := range assignments {
		if err := r.runStep(ctx, oreq, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context, oreq *orchestration.Request, assignments []*orchestration.Assignment) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assignments {
		a := a
		g.Go(func() error {
			return r.runStep(gctx, oreq, a)
		})
	}
	return g.Wait()
}

// RunAssignment dispatches a single assignment of the request and blocks
// until it reaches a terminal state. Used to replay a dead-lettered
// assignment without re-running its completed siblings.
func (r *Runner) RunAssignment(ctx context.Context, oreq *orchestration.Request, assignmentID id.AssignmentID) error {
	a, ok := oreq.Assignment(assignmentID)
	if !ok {
		return fmt.Errorf("saga %s: %w", oreq.ID, orchestrator.ErrAssignmentNotFound)
	}
	return r.runStep(ctx, oreq, a)
}

// runStep dispatches one assignment and blocks until it reaches a
// terminal state. A retried assignment (back to pending with retry budget
// left) is re-dispatched after its backoff delay.
func (r *Runner) runStep(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment) error {
	ctx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	if err := r.dispatch(ctx, oreq, a); err != nil {
		return err
	}
	return r.await(ctx, oreq, a)
}

// dispatch selects a worker for the assignment's type, marks the
// assignment processing through the executor, and publishes the work
// message. Worker selection retries with backoff up to the assignment's
// retry budget before giving up. A publish failure is routed through the
// executor's failure path so it consumes retry budget like any worker
// failure.
func (r *Runner) dispatch(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment) error {
	var w *worker.Worker
	for attempt := 0; ; attempt++ {
		candidates, err := r.workers.FindWorkersByType(ctx, a.WorkerType)
		if err != nil {
			return fmt.Errorf("find workers for %s: %w", a.WorkerType, err)
		}
		if w = r.selectWorker(ctx, oreq, a, candidates); w != nil {
			break
		}
		if attempt >= a.MaxRetries {
			return fmt.Errorf("assignment %s: no %s worker: %w",
				a.ID, a.WorkerType, orchestrator.ErrNoWorkerAvailable)
		}
		delay := r.backoff.Delay(attempt)
		r.logger.Warn("no eligible worker, backing off",
			slog.String("assignment_id", a.ID.String()),
			slog.String("worker_type", string(a.WorkerType)),
			slog.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := r.executor.Start(ctx, oreq.ID, a.ID, w.ID); err != nil {
		return fmt.Errorf("start assignment %s: %w", a.ID, err)
	}

	msg := r.buildMessage(oreq, a, w)
	if err := r.publisher.PublishToWorker(ctx, w.ID, msg); err != nil {
		_, retried, failErr := r.executor.Fail(ctx, oreq.ID, a.ID, fmt.Sprintf("publish to worker: %v", err))
		if failErr != nil {
			return fmt.Errorf("assignment %s: %w: %w", a.ID, orchestrator.ErrPublishFailed, failErr)
		}
		if retried {
			// await sees the pending assignment and re-dispatches after
			// the backoff delay.
			return nil
		}
		return fmt.Errorf("assignment %s: %w: %w", a.ID, orchestrator.ErrPublishFailed, err)
	}

	r.logger.Info("assignment dispatched",
		slog.String("assignment_id", a.ID.String()),
		slog.String("worker_id", w.ID.String()),
		slog.String("worker_type", string(a.WorkerType)),
	)
	return nil
}

// selectWorker filters type candidates through the router using a probe
// request carrying the orchestration payload.
func (r *Runner) selectWorker(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment, candidates []*worker.Worker) *worker.Worker {
	if len(candidates) == 0 {
		return nil
	}
	probe := request.New(requestTypeFor(a.WorkerType), oreq.Data, request.Metadata{UserID: oreq.UserID})
	w, ok := r.router.RouteSingle(ctx, probe, candidates)
	if !ok {
		return nil
	}
	return w
}

// await blocks until the assignment is terminal. Between poll slices it
// re-reads the assignment: a pending assignment means the executor rolled
// it back for retry, so it is re-dispatched after the backoff delay.
func (r *Runner) await(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment) error {
	eventName := event.AssignmentTerminal(a.ID)
	for {
		evt, err := r.bus.Subscribe(ctx, eventName, r.pollInterval)
		if err != nil {
			return fmt.Errorf("await assignment %s: %w", a.ID, err)
		}
		if evt != nil {
			if ackErr := r.bus.Ack(ctx, evt.ID); ackErr != nil {
				r.logger.Warn("ack terminal event failed",
					slog.String("event_id", evt.ID.String()),
					slog.String("error", ackErr.Error()),
				)
			}
			return r.resolveTerminal(a, evt)
		}

		if ctx.Err() != nil {
			return fmt.Errorf("await assignment %s: %w", a.ID, ctx.Err())
		}

		current, err := r.currentState(ctx, oreq, a)
		if err != nil {
			return err
		}
		switch current.Status {
		case orchestration.AssignmentPending:
			// Rolled back for retry by the executor.
			delay := r.backoff.Delay(current.RetryCount)
			r.logger.Info("assignment retrying",
				slog.String("assignment_id", a.ID.String()),
				slog.Int("retry_count", current.RetryCount),
				slog.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("await assignment %s: %w", a.ID, ctx.Err())
			}
			if err := r.dispatch(ctx, oreq, a); err != nil {
				return err
			}
		case orchestration.AssignmentCompleted:
			return nil
		case orchestration.AssignmentFailed:
			return fmt.Errorf("assignment %s failed: %s", a.ID, current.Error)
		}
	}
}

// currentState re-reads the assignment from the store, falling back to
// the in-memory copy when the store has no fresher view.
func (r *Runner) currentState(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment) (*orchestration.Assignment, error) {
	stored, err := r.orchestrations.GetOrchestration(ctx, oreq.ID)
	if err != nil {
		return nil, fmt.Errorf("reload orchestration %s: %w", oreq.ID, err)
	}
	if current, ok := stored.Assignment(a.ID); ok {
		return current, nil
	}
	return a, nil
}

// resolveTerminal maps a terminal event payload to the step outcome.
func (r *Runner) resolveTerminal(a *orchestration.Assignment, evt *event.Event) error {
	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return fmt.Errorf("decode terminal event for %s: %w", a.ID, err)
	}
	if payload.Status == string(orchestration.AssignmentFailed) {
		return fmt.Errorf("assignment %s failed: %s", a.ID, payload.Error)
	}
	return nil
}

func (r *Runner) buildMessage(oreq *orchestration.Request, a *orchestration.Assignment, w *worker.Worker) *message.Message {
	msg := message.New(message.TypeRequest, oreq.Data)
	msg.CorrelationID = a.ID.String()
	msg.ReplyTo = oreq.ID.String()
	msg.Headers.Source = message.SourceOrchestrator
	msg.Headers.Destination = w.ID.String()
	msg.Headers.ContentType = message.ContentTypeJSON
	msg.Headers.UserID = oreq.UserID
	return msg
}

// requestTypeFor maps a worker type to the request type its capability
// declarations advertise.
func requestTypeFor(wt worker.Type) request.Type {
	switch wt {
	case worker.TypeAssistant:
		return request.TypeLLMInference
	case worker.TypeResume:
		return request.TypeResumeAnalysis
	case worker.TypeLatex:
		return request.TypeLatexCompilation
	case worker.TypeInterview:
		return request.TypeInterviewProcessing
	case worker.TypeAgentTool:
		return request.TypeAgentToolExecution
	case worker.TypeDataProcessing:
		return request.TypeDataProcessing
	case worker.TypeScheduling:
		return request.TypeScheduling
	default:
		return request.TypeLLMInference
	}
}
