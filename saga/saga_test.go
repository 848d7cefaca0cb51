package saga_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/backoff"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/dispatcher"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/router"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/saga"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

// memOrchestrationStore snapshots each write through the JSON codec so
// readers never share live pointers with writers, the way a real store
// round trip behaves.
type memOrchestrationStore struct {
	mu       sync.Mutex
	requests map[id.OrchestrationID][]byte
}

func newMemOrchestrationStore() *memOrchestrationStore {
	return &memOrchestrationStore{requests: make(map[id.OrchestrationID][]byte)}
}

func (s *memOrchestrationStore) SaveOrchestration(_ context.Context, r *orchestration.Request) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = data
	return nil
}

func (s *memOrchestrationStore) GetOrchestration(_ context.Context, requestID id.OrchestrationID) (*orchestration.Request, error) {
	s.mu.Lock()
	data, ok := s.requests[requestID]
	s.mu.Unlock()
	if !ok {
		return nil, orchestrator.ErrOrchestrationNotFound
	}
	var r orchestration.Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *memOrchestrationStore) UpdateOrchestration(ctx context.Context, r *orchestration.Request) error {
	return s.SaveOrchestration(ctx, r)
}

func (s *memOrchestrationStore) FindByIdempotencyKey(_ context.Context, key string) (*orchestration.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range s.requests {
		var r orchestration.Request
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		if r.IdempotencyKey == key {
			return &r, nil
		}
	}
	return nil, orchestrator.ErrOrchestrationNotFound
}

func (s *memOrchestrationStore) ListOrchestrationsByStatus(_ context.Context, status orchestration.Status, _ orchestration.ListOpts) ([]*orchestration.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*orchestration.Request
	for _, data := range s.requests {
		var r orchestration.Request
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		if r.Status == status {
			out = append(out, &r)
		}
	}
	return out, nil
}

type memWorkerStore struct {
	mu      sync.Mutex
	workers map[id.WorkerID]*worker.Worker
}

func newMemWorkerStore() *memWorkerStore {
	return &memWorkerStore{workers: make(map[id.WorkerID]*worker.Worker)}
}

func (s *memWorkerStore) RegisterWorker(_ context.Context, w *worker.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	return nil
}

func (s *memWorkerStore) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, workerID)
	return nil
}

func (s *memWorkerStore) GetWorker(_ context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return nil, orchestrator.ErrWorkerNotFound
	}
	return w, nil
}

func (s *memWorkerStore) FindWorkersByType(_ context.Context, typ worker.Type) ([]*worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*worker.Worker
	for _, w := range s.workers {
		if w.Type == typ {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memWorkerStore) FindAvailableWorkers(_ context.Context) ([]*worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*worker.Worker
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out, nil
}

func (s *memWorkerStore) UpdateWorker(_ context.Context, w *worker.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	return nil
}

func (s *memWorkerStore) UpdateWorkerStatus(_ context.Context, workerID id.WorkerID, status worker.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[workerID]; ok {
		w.UpdateHealth(status)
	}
	return nil
}

func (s *memWorkerStore) HeartbeatWorker(_ context.Context, _ id.WorkerID) error { return nil }

func (s *memWorkerStore) ReapStaleWorkers(_ context.Context, _ time.Duration) ([]*worker.Worker, error) {
	return nil, nil
}

// memEventStore supports the blocking Subscribe contract the saga runner
// depends on: wait for an unacked matching event up to the timeout.
type memEventStore struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *memEventStore) PublishEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *memEventStore) SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		if evt := s.find(name); evt != nil {
			return evt, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (s *memEventStore) find(name string) *event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.events {
		if evt.Name == name && !evt.Acked {
			return evt
		}
	}
	return nil
}

func (s *memEventStore) AckEvent(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.events {
		if evt.ID == eventID {
			evt.Acked = true
		}
	}
	return nil
}

type memDeadLetterStore struct {
	mu      sync.Mutex
	entries []*deadletter.Entry
}

func (s *memDeadLetterStore) PushDeadLetter(_ context.Context, entry *deadletter.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memDeadLetterStore) ListDeadLetters(_ context.Context, _ deadletter.ListOpts) ([]*deadletter.Entry, error) {
	return nil, nil
}

func (s *memDeadLetterStore) GetDeadLetter(_ context.Context, _ id.DeadLetterID) (*deadletter.Entry, error) {
	return nil, orchestrator.ErrDeadLetterNotFound
}

func (s *memDeadLetterStore) ReplayDeadLetter(_ context.Context, _ id.DeadLetterID) error {
	return nil
}

func (s *memDeadLetterStore) PurgeDeadLetters(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *memDeadLetterStore) CountDeadLetters(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

// scriptedPublisher plays the worker side: each published assignment is
// answered asynchronously by the configured reply function.
type scriptedPublisher struct {
	mu        sync.Mutex
	published []*message.Message
	failures  int
	reply     func(assignmentID id.AssignmentID)
}

func (p *scriptedPublisher) Publish(ctx context.Context, m *message.Message) error {
	return p.PublishToWorker(ctx, id.NewWorkerID(), m)
}

func (p *scriptedPublisher) PublishToWorker(_ context.Context, _ id.WorkerID, m *message.Message) error {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return errors.New("broker unreachable")
	}
	p.published = append(p.published, m)
	reply := p.reply
	p.mu.Unlock()

	if reply != nil {
		assignmentID, err := id.ParseAssignmentID(m.CorrelationID)
		if err == nil {
			go reply(assignmentID)
		}
	}
	return nil
}

func (p *scriptedPublisher) SubscribeToResponses(_ context.Context, _ message.Handler) error {
	return nil
}

func (p *scriptedPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// ──────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────

type fixture struct {
	orchestrations *memOrchestrationStore
	workers        *memWorkerStore
	deadletters    *memDeadLetterStore
	publisher      *scriptedPublisher
	executor       *dispatcher.Executor
	runner         *saga.Runner
}

func newFixture(t *testing.T, opts ...saga.Option) *fixture {
	t.Helper()
	f := &fixture{
		orchestrations: newMemOrchestrationStore(),
		workers:        newMemWorkerStore(),
		deadletters:    &memDeadLetterStore{},
		publisher:      &scriptedPublisher{},
	}
	bus := event.NewBus(&memEventStore{})
	f.executor = dispatcher.NewExecutor(
		f.orchestrations,
		deadletter.NewService(f.deadletters, f.orchestrations),
		ext.NewRegistry(slog.Default()),
		bus,
		backoff.NewConstant(time.Millisecond),
		slog.Default(),
	)

	opts = append([]saga.Option{
		saga.WithBackoff(backoff.NewConstant(time.Millisecond)),
		saga.WithPollInterval(5 * time.Millisecond),
		saga.WithStepTimeout(2 * time.Second),
	}, opts...)

	f.runner = saga.NewRunner(
		f.orchestrations, f.workers, f.publisher, router.New(),
		f.executor, bus, opts...,
	)
	return f
}

func (f *fixture) addWorker(t *testing.T, typ worker.Type) *worker.Worker {
	t.Helper()
	w := worker.New(typ, []worker.Capability{{
		Name:                  string(typ),
		SupportedRequestTypes: allRequestTypes(),
		MaxConcurrency:        4,
	}}, worker.Connection{Host: "localhost", Port: 9000, Protocol: "tcp"})
	w.UpdateHealth(worker.StatusAvailable)
	if err := f.workers.RegisterWorker(context.Background(), w); err != nil {
		t.Fatalf("register worker: %v", err)
	}
	return w
}

func allRequestTypes() []request.Type {
	return []request.Type{
		request.TypeLLMInference, request.TypeResumeAnalysis,
		request.TypeLatexCompilation, request.TypeInterviewProcessing,
		request.TypeAgentToolExecution, request.TypeDataProcessing,
		request.TypeScheduling,
	}
}

func (f *fixture) newOrchestration(t *testing.T, assignmentTypes ...worker.Type) *orchestration.Request {
	t.Helper()
	oreq := orchestration.NewRequest("user-1", workflow.TypeCustom, map[string]any{"doc": "x"})
	for _, typ := range assignmentTypes {
		oreq.AddAssignment(orchestration.NewAssignment(typ))
	}
	if err := f.orchestrations.SaveOrchestration(context.Background(), oreq); err != nil {
		t.Fatalf("save orchestration: %v", err)
	}
	return oreq
}

// waitProcessing blocks the simulated worker until the runner has marked
// the assignment processing, mirroring the real sequencing where a worker
// only replies to work it has received.
func (f *fixture) waitProcessing(oreq *orchestration.Request, assignmentID id.AssignmentID) {
	for i := 0; i < 2000; i++ {
		stored, err := f.orchestrations.GetOrchestration(context.Background(), oreq.ID)
		if err == nil {
			if a, ok := stored.Assignment(assignmentID); ok && a.Status == orchestration.AssignmentProcessing {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
}

// reload fetches the latest persisted aggregate. The runner and executor
// work on store copies, so final state is always asserted through the
// store, never the pointer handed to Run.
func (f *fixture) reload(t *testing.T, oreqID id.OrchestrationID) *orchestration.Request {
	t.Helper()
	stored, err := f.orchestrations.GetOrchestration(context.Background(), oreqID)
	if err != nil {
		t.Fatalf("reload orchestration: %v", err)
	}
	return stored
}

// completeReply answers every dispatch with a successful completion.
func (f *fixture) completeReply(oreq *orchestration.Request) func(id.AssignmentID) {
	return func(assignmentID id.AssignmentID) {
		f.waitProcessing(oreq, assignmentID)
		a, _ := oreq.Assignment(assignmentID)
		_ = f.executor.Complete(context.Background(), oreq.ID, assignmentID, map[string]any{
			"worker": string(a.WorkerType),
		})
	}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRun_SequentialPipelineCompletes(t *testing.T) {
	f := newFixture(t)
	f.addWorker(t, worker.TypeResume)
	f.addWorker(t, worker.TypeLatex)

	oreq := f.newOrchestration(t, worker.TypeResume, worker.TypeLatex)
	f.publisher.reply = f.completeReply(oreq)

	if err := f.runner.Run(context.Background(), oreq); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := f.reload(t, oreq.ID)
	if stored.Status != orchestration.StatusCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if got := f.publisher.count(); got != 2 {
		t.Errorf("published %d messages, want 2", got)
	}
	// The first step's completion survives the second step's dispatch.
	if _, ok := stored.Result[string(worker.TypeResume)]; !ok {
		t.Errorf("merged result missing resume entry: %v", stored.Result)
	}
	if _, ok := stored.Result[string(worker.TypeLatex)]; !ok {
		t.Errorf("merged result missing latex entry: %v", stored.Result)
	}
}

func TestRun_SequentialDispatchesInPipelineOrder(t *testing.T) {
	f := newFixture(t)
	f.addWorker(t, worker.TypeResume)
	f.addWorker(t, worker.TypeLatex)

	oreq := f.newOrchestration(t, worker.TypeResume, worker.TypeLatex)
	assignments := oreq.Assignments()

	var order []id.AssignmentID
	var orderMu sync.Mutex
	f.publisher.reply = func(assignmentID id.AssignmentID) {
		orderMu.Lock()
		order = append(order, assignmentID)
		orderMu.Unlock()
		f.completeReply(oreq)(assignmentID)
	}

	if err := f.runner.Run(context.Background(), oreq); err != nil {
		t.Fatalf("Run: %v", err)
	}

	orderMu.Lock()
	defer orderMu.Unlock()
	if len(order) != 2 {
		t.Fatalf("dispatched %d assignments, want 2", len(order))
	}
	if order[0] != assignments[0].ID || order[1] != assignments[1].ID {
		t.Errorf("dispatch order = %v, want pipeline order %v then %v",
			order, assignments[0].ID, assignments[1].ID)
	}
}

func TestRun_RetriedStepRedispatches(t *testing.T) {
	f := newFixture(t)
	f.addWorker(t, worker.TypeResume)

	oreq := f.newOrchestration(t, worker.TypeResume)

	var attemptMu sync.Mutex
	var attempts int
	f.publisher.reply = func(assignmentID id.AssignmentID) {
		f.waitProcessing(oreq, assignmentID)
		attemptMu.Lock()
		attempts++
		first := attempts == 1
		attemptMu.Unlock()
		if first {
			_, _, _ = f.executor.Fail(context.Background(), oreq.ID, assignmentID, "transient crash")
			return
		}
		_ = f.executor.Complete(context.Background(), oreq.ID, assignmentID, map[string]any{"ok": true})
	}

	if err := f.runner.Run(context.Background(), oreq); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := f.reload(t, oreq.ID)
	if stored.Status != orchestration.StatusCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if got := f.publisher.count(); got != 2 {
		t.Errorf("published %d messages, want 2 (original + retry)", got)
	}
	a := stored.Assignments()[0]
	if a.Status != orchestration.AssignmentCompleted {
		t.Errorf("assignment status = %q, want completed", a.Status)
	}
	if a.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", a.RetryCount)
	}
}

func TestRun_PublishFailureConsumesRetryBudget(t *testing.T) {
	f := newFixture(t)
	f.addWorker(t, worker.TypeResume)

	oreq := f.newOrchestration(t, worker.TypeResume)
	f.publisher.failures = 1
	f.publisher.reply = f.completeReply(oreq)

	if err := f.runner.Run(context.Background(), oreq); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := f.reload(t, oreq.ID)
	if stored.Status != orchestration.StatusCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	a := stored.Assignments()[0]
	if a.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", a.RetryCount)
	}
	// Only the successful second attempt reached the broker.
	if got := f.publisher.count(); got != 1 {
		t.Errorf("published %d messages, want 1", got)
	}
}

func TestRun_ExhaustedRetriesFailsRequest(t *testing.T) {
	f := newFixture(t)
	f.addWorker(t, worker.TypeResume)

	oreq := f.newOrchestration(t, worker.TypeResume)
	oreq.Assignments()[0].MaxRetries = 0
	if err := f.orchestrations.UpdateOrchestration(context.Background(), oreq); err != nil {
		t.Fatalf("persist retry budget: %v", err)
	}

	f.publisher.reply = func(assignmentID id.AssignmentID) {
		f.waitProcessing(oreq, assignmentID)
		_, _, _ = f.executor.Fail(context.Background(), oreq.ID, assignmentID, "hard failure")
	}

	err := f.runner.Run(context.Background(), oreq)
	if err == nil {
		t.Fatal("expected error for terminally failed assignment")
	}

	stored := f.reload(t, oreq.ID)
	if stored.Status != orchestration.StatusFailed {
		t.Errorf("status = %q, want failed", stored.Status)
	}
	if n, _ := f.deadletters.CountDeadLetters(context.Background()); n != 1 {
		t.Errorf("dead letters = %d, want 1", n)
	}
}

func TestRun_NoWorkerAvailable(t *testing.T) {
	f := newFixture(t)
	// No workers registered at all.

	oreq := f.newOrchestration(t, worker.TypeResume)
	oreq.Assignments()[0].MaxRetries = 1

	err := f.runner.Run(context.Background(), oreq)
	if !errors.Is(err, orchestrator.ErrNoWorkerAvailable) {
		t.Fatalf("expected ErrNoWorkerAvailable, got %v", err)
	}
	if got := f.publisher.count(); got != 0 {
		t.Errorf("published %d messages, want 0", got)
	}
}

func TestRun_ParallelCompletesAllSteps(t *testing.T) {
	f := newFixture(t, saga.WithParallel())
	f.addWorker(t, worker.TypeResume)
	f.addWorker(t, worker.TypeLatex)
	f.addWorker(t, worker.TypeAssistant)

	oreq := f.newOrchestration(t, worker.TypeResume, worker.TypeLatex, worker.TypeAssistant)
	f.publisher.reply = f.completeReply(oreq)

	if err := f.runner.Run(context.Background(), oreq); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := f.reload(t, oreq.ID)
	if stored.Status != orchestration.StatusCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if len(stored.Result) != 3 {
		t.Errorf("merged results = %d entries, want 3: %v", len(stored.Result), stored.Result)
	}
}

func TestRun_NoAssignments(t *testing.T) {
	f := newFixture(t)
	oreq := f.newOrchestration(t)

	if err := f.runner.Run(context.Background(), oreq); err == nil {
		t.Fatal("expected error for orchestration without assignments")
	}
}
