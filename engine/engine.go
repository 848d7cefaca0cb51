package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/backoff"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/coordinator"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/dispatcher"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	mw "github.com/Engineer-s-Edge/enginedge-core-sub005/middleware"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/observability"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/pool"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/router"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/saga"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/store"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// Engine wires every subsystem of the orchestration core and exposes the
// application-level façade: dispatch a single request, submit a
// multi-worker workflow, manage the worker registry, inspect and replay
// dead letters.
type Engine struct {
	o      *orchestrator.Orchestrator
	logger *slog.Logger
	st     store.Store

	publisher   message.Publisher
	extensions  *ext.Registry
	coordinator *coordinator.Manager
	router      *router.Router
	dispatcher  *dispatcher.Dispatcher
	executor    *dispatcher.Executor
	saga        *saga.Runner
	monitor     *worker.Monitor
	bus         *event.Bus
	deadletters *deadletter.Service
	registry    *pool.Registry
	pool        *pool.Pool

	bo           backoff.Strategy
	mws          []mw.Middleware
	selector     router.Selector
	coordConfigs []coordinator.Config
	userExts     []ext.Extension

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu        sync.Mutex
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	cfgSet bool
	cfg    orchestrator.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg orchestrator.Config) Option {
	return func(eng *Engine) {
		eng.cfg = cfg
		eng.cfgSet = true
	}
}

// WithLogger sets the structured logger for the engine and every
// subsystem it builds.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = l
	}
}

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(eng *Engine) {
		eng.st = s
	}
}

// WithPublisher sets the message bus the engine dispatches work over.
// Required.
func WithPublisher(p message.Publisher) Option {
	return func(eng *Engine) {
		eng.publisher = p
	}
}

// WithSelector overrides the worker selection strategy. The default is
// LeastLoaded backed by the engine's coordinator.
func WithSelector(s router.Selector) Option {
	return func(eng *Engine) {
		eng.selector = s
	}
}

// WithBackoff sets the retry backoff strategy.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithMiddleware appends middleware to the dispatch chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.userExts = append(eng.userExts, e)
	}
}

// WithCoordinatorConfig sets per-worker-type concurrency caps and
// admission rate limits.
func WithCoordinatorConfig(configs ...coordinator.Config) Option {
	return func(eng *Engine) {
		eng.coordConfigs = append(eng.coordConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both the
// metrics middleware and the observability extension use this provider
// instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// New builds an Engine and all of its subsystems. The store and
// publisher options are required; everything else has a default.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.st == nil {
		return nil, orchestrator.ErrNoStore
	}
	if eng.publisher == nil {
		return nil, orchestrator.ErrNoPublisher
	}

	rootOpts := []orchestrator.Option{
		orchestrator.WithLogger(eng.logger),
		orchestrator.WithStore(eng.st),
	}
	if eng.cfgSet {
		rootOpts = append(rootOpts, orchestrator.WithConfig(eng.cfg))
	}
	o, err := orchestrator.New(rootOpts...)
	if err != nil {
		return nil, err
	}
	eng.o = o
	config := o.Config()

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.extensions = ext.NewRegistry(eng.logger)

	// Register the observability metrics extension before user extensions
	// so its hooks fire first.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/Engineer-s-Edge/enginedge-core-sub005/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.userExts {
		eng.extensions.Register(e)
	}

	eng.coordinator = coordinator.NewManager(eng.coordConfigs...)

	if eng.selector == nil {
		eng.selector = router.LeastLoaded{Loads: eng.coordinator}
	}
	eng.router = router.New(
		router.WithSelector(eng.selector),
		router.WithLogger(eng.logger),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/Engineer-s-Edge/enginedge-core-sub005")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/Engineer-s-Edge/enginedge-core-sub005")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging →
	// scope → timeout. User middleware runs innermost.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Scope(),
		mw.Timeout(eng.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.bus = event.NewBus(eng.st)
	eng.deadletters = deadletter.NewService(eng.st, eng.st)

	eng.dispatcher = dispatcher.New(
		eng.st, eng.st, eng.st,
		eng.publisher,
		eng.router,
		eng.coordinator,
		eng.extensions,
		eng.logger,
		allMws...,
	)
	eng.executor = dispatcher.NewExecutor(
		eng.st, eng.deadletters, eng.extensions, eng.bus, eng.bo, eng.logger,
	)
	eng.saga = saga.NewRunner(
		eng.st, eng.st,
		eng.publisher,
		eng.router,
		eng.executor,
		eng.bus,
		saga.WithBackoff(eng.bo),
		saga.WithLogger(eng.logger),
	)

	eng.monitor = worker.NewMonitor(eng.st, eng.logger,
		worker.WithSweepInterval(config.HeartbeatInterval),
		worker.WithStaleThreshold(config.WorkerStaleThreshold),
		worker.WithStaleHook(eng.onWorkerStale),
	)

	eng.registry = pool.NewRegistry()
	eng.pool = pool.New(eng.registry,
		pool.WithSize(config.PoolSize),
		pool.WithDefaultTimeout(config.DispatchTimeout),
		pool.WithPoolLogger(eng.logger),
	)

	o.SetPool(eng.pool)
	o.SetExtensions(eng.extensions)

	return eng, nil
}

// Start verifies the store connection, initializes the execution pool,
// subscribes to worker replies, and starts the liveness monitor.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.runCtx != nil {
		return nil
	}

	if err := eng.st.Ping(ctx); err != nil {
		return fmt.Errorf("engine: store ping: %w", err)
	}
	if err := eng.o.Start(ctx); err != nil {
		return err
	}

	// Background work outlives the Start call but not the engine.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	eng.runCtx = runCtx
	eng.runCancel = cancel

	if err := eng.publisher.SubscribeToResponses(runCtx, eng.onReply); err != nil {
		cancel()
		eng.runCtx = nil
		eng.runCancel = nil
		return fmt.Errorf("engine: subscribe to responses: %w", err)
	}
	if err := eng.monitor.Start(runCtx); err != nil {
		cancel()
		eng.runCtx = nil
		eng.runCancel = nil
		return fmt.Errorf("engine: start worker monitor: %w", err)
	}

	eng.logger.Info("engine started")
	return nil
}

// Stop gracefully shuts down the engine: stops taking background work,
// waits for in-flight sagas, then drains the pool and closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.monitor.Stop(ctx); err != nil {
		eng.logger.Warn("monitor stop", slog.String("error", err.Error()))
	}
	if eng.runCancel != nil {
		eng.runCancel()
		eng.runCtx = nil
		eng.runCancel = nil
	}

	done := make(chan struct{})
	go func() {
		eng.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		eng.logger.Warn("engine stop: sagas still in flight at deadline")
	}

	return eng.o.Stop(ctx)
}

// Close forces an immediate shutdown without draining.
func (eng *Engine) Close() error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.runCancel != nil {
		eng.runCancel()
		eng.runCtx = nil
		eng.runCancel = nil
	}
	eng.pool.ForceShutdown()
	return eng.st.Close()
}

// ────────────────────────────────────────────────────────────────────────────
// Façade
// ────────────────────────────────────────────────────────────────────────────

// Dispatch routes a single request to an eligible worker and returns the
// persisted outcome: a pending response when the work went out, an error
// response when no worker could take it.
func (eng *Engine) Dispatch(ctx context.Context, req *request.Request) (*request.Response, error) {
	return eng.dispatcher.Execute(ctx, req)
}

// Submit accepts a multi-worker workflow job: detect the workflow when
// none is named, validate, route to the worker pipeline, persist, and
// hand the request to the saga runner in the background. The returned
// request is the persisted pending aggregate; progress is observable
// through the store and the event log.
//
// A non-empty idempotency key that matches a stored request short-circuits
// with the original request and ErrDuplicateSubmission.
func (eng *Engine) Submit(ctx context.Context, userID string, wf workflow.Type, data map[string]any, opts ...orchestration.RequestOption) (*orchestration.Request, error) {
	eng.mu.Lock()
	runCtx := eng.runCtx
	eng.mu.Unlock()
	if runCtx == nil {
		return nil, fmt.Errorf("engine: not started")
	}

	wf = workflow.Detect(wf, data)
	if v := workflow.Validate(wf, userID, data); !v.Valid {
		return nil, fmt.Errorf("engine: invalid submission: %s", v.Error)
	}

	oreq := orchestration.NewRequest(userID, wf, data, opts...)

	if oreq.IdempotencyKey != "" {
		existing, err := eng.st.FindByIdempotencyKey(ctx, oreq.IdempotencyKey)
		switch {
		case err == nil:
			return existing, orchestrator.ErrDuplicateSubmission
		case !isNotFound(err):
			return nil, fmt.Errorf("engine: idempotency lookup: %w", err)
		}
	}

	eng.extensions.EmitRequestReceived(ctx, oreq)

	config := eng.o.Config()
	assignments := eng.router.RouteWorkflow(oreq)
	for _, a := range assignments {
		a.MaxRetries = config.MaxRetries
	}
	eng.extensions.EmitRequestRouted(ctx, oreq, assignments)

	if err := eng.st.SaveOrchestration(ctx, oreq); err != nil {
		return nil, fmt.Errorf("engine: persist submission: %w", err)
	}
	eng.publishLifecycle(ctx, event.NameRequestReceived, oreq)

	eng.wg.Add(1)
	go func() {
		defer eng.wg.Done()
		if err := eng.saga.Run(runCtx, oreq); err != nil {
			eng.logger.Error("saga run failed",
				slog.String("orchestration_id", oreq.ID.String()),
				slog.String("workflow", string(oreq.Workflow)),
				slog.String("error", err.Error()),
			)
		}
	}()

	eng.logger.Info("workflow submitted",
		slog.String("orchestration_id", oreq.ID.String()),
		slog.String("workflow", string(oreq.Workflow)),
		slog.String("user_id", userID),
		slog.Int("assignments", len(assignments)),
	)
	return oreq, nil
}

// RegisterWorker adds a worker to the registry and notifies extensions.
func (eng *Engine) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	if err := eng.st.RegisterWorker(ctx, w); err != nil {
		return err
	}
	eng.extensions.EmitWorkerRegistered(ctx, w)
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (eng *Engine) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	return eng.st.DeregisterWorker(ctx, workerID)
}

// Heartbeat records worker liveness.
func (eng *Engine) Heartbeat(ctx context.Context, workerID id.WorkerID) error {
	return eng.st.HeartbeatWorker(ctx, workerID)
}

// DeadLetters lists dead letter entries.
func (eng *Engine) DeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	return eng.st.ListDeadLetters(ctx, opts)
}

// Replay re-creates a pending assignment from a dead letter entry and
// re-dispatches it in the background.
func (eng *Engine) Replay(ctx context.Context, entryID id.DeadLetterID) (*orchestration.Assignment, error) {
	eng.mu.Lock()
	runCtx := eng.runCtx
	eng.mu.Unlock()
	if runCtx == nil {
		return nil, fmt.Errorf("engine: not started")
	}

	a, err := eng.deadletters.Replay(ctx, entryID)
	if err != nil {
		return a, err
	}

	oreq, err := eng.st.GetOrchestration(ctx, a.RequestID)
	if err != nil {
		return a, fmt.Errorf("engine: reload orchestration for replay: %w", err)
	}

	eng.wg.Add(1)
	go func() {
		defer eng.wg.Done()
		if err := eng.saga.RunAssignment(runCtx, oreq, a.ID); err != nil {
			eng.logger.Error("replay run failed",
				slog.String("assignment_id", a.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()
	return a, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Reply ingestion
// ────────────────────────────────────────────────────────────────────────────

// onReply routes an incoming worker reply. Replies correlated to a worker
// assignment drive the orchestration state machine through the executor;
// everything else is a single-dispatch reply.
func (eng *Engine) onReply(ctx context.Context, msg *message.Message) error {
	if asgID, err := id.ParseAssignmentID(msg.CorrelationID); err == nil {
		return eng.onAssignmentReply(ctx, msg, asgID)
	}
	_, err := eng.dispatcher.OnWorkerReply(ctx, msg)
	return err
}

func (eng *Engine) onAssignmentReply(ctx context.Context, msg *message.Message, asgID id.AssignmentID) error {
	oreqID, err := id.ParseOrchestrationID(msg.ReplyTo)
	if err != nil {
		return fmt.Errorf("engine: assignment reply %s without orchestration: %w", asgID, err)
	}

	eng.releaseReplySource(ctx, msg)
	eng.extensions.EmitWorkerReply(ctx, msg)

	if msg.Error != nil {
		_, _, failErr := eng.executor.Fail(ctx, oreqID, asgID, msg.Error.Message)
		return failErr
	}
	return eng.executor.Complete(ctx, oreqID, asgID, msg.Payload)
}

// releaseReplySource frees coordinator capacity for the replying worker,
// identified by the message source header when it parses as a worker ID.
func (eng *Engine) releaseReplySource(ctx context.Context, msg *message.Message) {
	workerID, err := id.ParseWorkerID(msg.Headers.Source)
	if err != nil {
		return
	}
	if err := eng.coordinator.ReleaseWorker(ctx, workerID); err != nil {
		eng.logger.Warn("release reply source",
			slog.String("worker_id", workerID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// onWorkerStale fires for every worker the monitor marks unhealthy. Its
// in-flight assignments are failed so the saga runner can retry them on
// another worker.
func (eng *Engine) onWorkerStale(ctx context.Context, w *worker.Worker) {
	eng.extensions.EmitWorkerLost(ctx, w)

	listed, err := eng.st.ListOrchestrationsByStatus(ctx, orchestration.StatusProcessing, orchestration.ListOpts{})
	if err != nil {
		eng.logger.Error("list in-flight orchestrations for lost worker",
			slog.String("worker_id", w.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, stub := range listed {
		oreq, err := eng.st.GetOrchestration(ctx, stub.ID)
		if err != nil {
			eng.logger.Warn("reload orchestration for lost worker",
				slog.String("orchestration_id", stub.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, a := range oreq.Assignments() {
			if a.Status != orchestration.AssignmentProcessing || a.WorkerID != w.ID {
				continue
			}
			if _, _, failErr := eng.executor.Fail(ctx, oreq.ID, a.ID, "worker lost"); failErr != nil {
				eng.logger.Error("release assignment of lost worker",
					slog.String("assignment_id", a.ID.String()),
					slog.String("error", failErr.Error()),
				)
			}
		}
	}
}

// publishLifecycle emits a best-effort lifecycle event for the request.
func (eng *Engine) publishLifecycle(ctx context.Context, name string, oreq *orchestration.Request) {
	payload := []byte(fmt.Sprintf(`{"orchestration_id":%q,"workflow":%q}`, oreq.ID, oreq.Workflow))
	if _, err := eng.bus.Publish(ctx, name, payload, oreq.UserID); err != nil {
		eng.logger.Warn("publish lifecycle event",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}

// isNotFound reports whether err is the orchestration not-found sentinel,
// possibly wrapped by a store implementation.
func isNotFound(err error) bool {
	return errors.Is(err, orchestrator.ErrOrchestrationNotFound)
}

// ────────────────────────────────────────────────────────────────────────────
// Accessors
// ────────────────────────────────────────────────────────────────────────────

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Bus returns the lifecycle event bus.
func (eng *Engine) Bus() *event.Bus { return eng.bus }

// Pool returns the local execution pool.
func (eng *Engine) Pool() *pool.Pool { return eng.pool }

// TaskRegistry returns the pool's task registry.
func (eng *Engine) TaskRegistry() *pool.Registry { return eng.registry }

// Coordinator returns the worker coordinator.
func (eng *Engine) Coordinator() *coordinator.Manager { return eng.coordinator }

// DeadLetterService returns the dead letter service for direct access.
func (eng *Engine) DeadLetterService() *deadletter.Service { return eng.deadletters }

// Orchestrator returns the underlying root holder.
func (eng *Engine) Orchestrator() *orchestrator.Orchestrator { return eng.o }

// RegisterTask registers a typed task definition on the engine's pool.
func RegisterTask[T any](eng *Engine, def *pool.Definition[T]) {
	pool.RegisterDefinition(eng.registry, def)
}

// ExecuteTask runs a task on the engine's local execution pool.
func (eng *Engine) ExecuteTask(ctx context.Context, task *pool.Task) (*pool.Result, error) {
	return eng.pool.Execute(ctx, task)
}
