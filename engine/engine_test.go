package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/engine"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/store/memory"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/stream"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.PoolSize = 1
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.WorkerStaleThreshold = 10 * time.Second
	return cfg
}

type harness struct {
	eng    *engine.Engine
	store  *memory.Store
	broker *stream.Broker
}

func newHarness(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()

	st := memory.New()
	broker := stream.NewBroker(quietLogger())

	all := append([]engine.Option{
		engine.WithStore(st),
		engine.WithPublisher(broker),
		engine.WithLogger(quietLogger()),
		engine.WithConfig(testConfig()),
	}, opts...)

	eng, err := engine.New(all...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Stop(ctx); err != nil {
			t.Errorf("engine.Stop: %v", err)
		}
		broker.Close()
	})

	return &harness{eng: eng, store: st, broker: broker}
}

// replyFunc builds the worker's answer to one work message. The worker
// identity is passed in so replies can stamp the correct source header.
type replyFunc func(in *message.Message, w *worker.Worker) *message.Message

// startWorker registers an available worker of the given type and runs a
// goroutine that answers each work message through the reply function.
func (h *harness) startWorker(t *testing.T, typ worker.Type, reqTypes []request.Type, reply replyFunc) *worker.Worker {
	t.Helper()
	ctx := context.Background()

	w := worker.New(typ,
		[]worker.Capability{{
			Name:                  string(typ),
			SupportedRequestTypes: reqTypes,
			MaxConcurrency:        4,
		}},
		worker.Connection{Host: "localhost", Port: 9000, Protocol: "tcp"},
	)
	if err := h.eng.RegisterWorker(ctx, w); err != nil {
		t.Fatalf("register worker: %v", err)
	}
	if err := h.store.UpdateWorkerStatus(ctx, w.ID, worker.StatusAvailable); err != nil {
		t.Fatalf("mark worker available: %v", err)
	}

	sub := h.broker.SubscribeWorker(w.ID)
	go func() {
		for d := range sub.C() {
			sub.AddCredits(1)
			if d.Message.Type != message.TypeRequest {
				continue
			}
			resp := reply(d.Message, w)
			if resp == nil {
				continue
			}
			if err := h.broker.Publish(context.Background(), resp); err != nil {
				return
			}
		}
	}()
	return w
}

// successReply echoes a worker success for the incoming message.
func successReply(result map[string]any) replyFunc {
	return func(in *message.Message, w *worker.Worker) *message.Message {
		out := message.New(message.TypeResponse, result)
		out.CorrelationID = in.CorrelationID
		out.ReplyTo = in.ReplyTo
		out.Headers.Source = w.ID.String()
		return out
	}
}

// errorReply reports a worker failure for the incoming message.
func errorReply(msgText string) replyFunc {
	return func(in *message.Message, w *worker.Worker) *message.Message {
		out := message.New(message.TypeResponse, nil)
		out.CorrelationID = in.CorrelationID
		out.ReplyTo = in.ReplyTo
		out.Headers.Source = w.ID.String()
		out.Error = &message.ErrorDetail{Code: "WORKER_ERROR", Message: msgText}
		return out
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ────────────────────────────────────────────────────────────────────────────
// Construction
// ────────────────────────────────────────────────────────────────────────────

func TestNewRequiresStoreAndPublisher(t *testing.T) {
	t.Parallel()

	_, err := engine.New(engine.WithPublisher(stream.NewBroker(quietLogger())))
	if !errors.Is(err, orchestrator.ErrNoStore) {
		t.Errorf("missing store: got %v, want ErrNoStore", err)
	}

	_, err = engine.New(engine.WithStore(memory.New()))
	if !errors.Is(err, orchestrator.ErrNoPublisher) {
		t.Errorf("missing publisher: got %v, want ErrNoPublisher", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := orchestrator.DefaultConfig()
	cfg.MaxRetries = -1
	_, err := engine.New(
		engine.WithStore(memory.New()),
		engine.WithPublisher(stream.NewBroker(quietLogger())),
		engine.WithConfig(cfg),
	)
	if err == nil {
		t.Fatal("expected config validation error, got nil")
	}
}

func TestSubmitBeforeStartFails(t *testing.T) {
	t.Parallel()

	eng, err := engine.New(
		engine.WithStore(memory.New()),
		engine.WithPublisher(stream.NewBroker(quietLogger())),
		engine.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	_, err = eng.Submit(context.Background(), "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hi"})
	if err == nil {
		t.Fatal("expected error submitting before Start, got nil")
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Submit
// ────────────────────────────────────────────────────────────────────────────

func TestSubmitRejectsInvalidSubmission(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tests := []struct {
		name   string
		userID string
		wf     workflow.Type
		data   map[string]any
	}{
		{"missing user", "", workflow.TypeConversationContext, map[string]any{"message": "hi"}},
		{"unknown workflow", "user-1", workflow.Type("nope"), map[string]any{"x": 1}},
		{"nil data", "user-1", workflow.TypeConversationContext, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.eng.Submit(context.Background(), tt.userID, tt.wf, tt.data); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSubmitRunsSingleWorkerWorkflowToCompletion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		successReply(map[string]any{"answer": "42"}))

	oreq, err := h.eng.Submit(ctx, "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The saga goroutine owns the returned aggregate; observe progress
	// through store snapshots only.
	snapshot, err := h.store.GetOrchestration(ctx, oreq.ID)
	if err != nil {
		t.Fatalf("GetOrchestration after submit: %v", err)
	}
	if got := len(snapshot.Assignments()); got != 1 {
		t.Fatalf("assignments = %d, want 1", got)
	}

	waitFor(t, 10*time.Second, "orchestration to complete", func() bool {
		stored, err := h.store.GetOrchestration(ctx, oreq.ID)
		return err == nil && stored.Status == orchestration.StatusCompleted
	})

	stored, err := h.store.GetOrchestration(ctx, oreq.ID)
	if err != nil {
		t.Fatalf("GetOrchestration: %v", err)
	}
	res, ok := stored.Result[string(worker.TypeAssistant)]
	if !ok {
		t.Fatalf("merged result missing %q key: %v", worker.TypeAssistant, stored.Result)
	}
	m, ok := res.(map[string]any)
	if !ok || m["answer"] != "42" {
		t.Errorf("assistant result = %v, want answer 42", res)
	}
	if stored.CompletedAt == nil {
		t.Error("CompletedAt not set on completed orchestration")
	}
}

func TestSubmitRetriedAssignmentRecovers(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 2
	h := newHarness(t, engine.WithConfig(cfg))
	ctx := context.Background()

	// The first attempt fails; the re-dispatched attempt succeeds. The
	// second delivery proves the runner picked up the rolled-back
	// assignment from the store and drove it through a fresh dispatch.
	var calls atomic.Int64
	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		func(in *message.Message, w *worker.Worker) *message.Message {
			if calls.Add(1) == 1 {
				return errorReply("transient failure")(in, w)
			}
			return successReply(map[string]any{"answer": "second try"})(in, w)
		})

	oreq, err := h.eng.Submit(ctx, "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 10*time.Second, "orchestration to complete after retry", func() bool {
		stored, err := h.store.GetOrchestration(ctx, oreq.ID)
		return err == nil && stored.Status == orchestration.StatusCompleted
	})

	stored, err := h.store.GetOrchestration(ctx, oreq.ID)
	if err != nil {
		t.Fatalf("GetOrchestration: %v", err)
	}
	a := stored.Assignments()[0]
	if a.Status != orchestration.AssignmentCompleted {
		t.Errorf("assignment status = %q, want completed", a.Status)
	}
	if a.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", a.RetryCount)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("worker deliveries = %d, want 2", got)
	}
	entries, err := h.eng.DeadLetters(ctx, deadletter.ListOpts{})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("dead letters = %d, want 0", len(entries))
	}
}

func TestSubmitMultiStepPipelineCompletes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []worker.Type
	step := func(typ worker.Type, result map[string]any) replyFunc {
		return func(in *message.Message, w *worker.Worker) *message.Message {
			mu.Lock()
			order = append(order, typ)
			mu.Unlock()
			return successReply(result)(in, w)
		}
	}

	h.startWorker(t, worker.TypeAgentTool,
		[]request.Type{request.TypeAgentToolExecution},
		step(worker.TypeAgentTool, map[string]any{"sources": []any{"a", "b"}}))
	h.startWorker(t, worker.TypeDataProcessing,
		[]request.Type{request.TypeDataProcessing},
		step(worker.TypeDataProcessing, map[string]any{"cleaned": true}))
	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		step(worker.TypeAssistant, map[string]any{"summary": "findings"}))

	oreq, err := h.eng.Submit(ctx, "user-1", workflow.TypeExpertResearch,
		map[string]any{"query": "distributed tracing"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snapshot, err := h.store.GetOrchestration(ctx, oreq.ID)
	if err != nil {
		t.Fatalf("GetOrchestration after submit: %v", err)
	}
	if got := len(snapshot.Assignments()); got != 3 {
		t.Fatalf("assignments = %d, want 3", got)
	}

	waitFor(t, 10*time.Second, "pipeline to complete", func() bool {
		stored, err := h.store.GetOrchestration(ctx, oreq.ID)
		return err == nil && stored.Status == orchestration.StatusCompleted
	})

	stored, err := h.store.GetOrchestration(ctx, oreq.ID)
	if err != nil {
		t.Fatalf("GetOrchestration: %v", err)
	}
	// Every step's completion survives into the merged result; an earlier
	// step's outcome is not lost when a later one is dispatched.
	for typ, key := range map[worker.Type]string{
		worker.TypeAgentTool:      "sources",
		worker.TypeDataProcessing: "cleaned",
		worker.TypeAssistant:      "summary",
	} {
		res, ok := stored.Result[string(typ)]
		if !ok {
			t.Fatalf("merged result missing %q: %v", typ, stored.Result)
		}
		m, ok := res.(map[string]any)
		if !ok {
			t.Fatalf("result for %q is %T, want map", typ, res)
		}
		if _, ok := m[key]; !ok {
			t.Errorf("result for %q missing %q: %v", typ, key, m)
		}
	}
	for _, a := range stored.Assignments() {
		if a.Status != orchestration.AssignmentCompleted {
			t.Errorf("assignment %s status = %q, want completed", a.WorkerType, a.Status)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []worker.Type{worker.TypeAgentTool, worker.TypeDataProcessing, worker.TypeAssistant}
	if len(order) != len(want) {
		t.Fatalf("deliveries = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", order, want)
		}
	}
}

func TestSubmitIdempotencyKeyShortCircuits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		successReply(map[string]any{"ok": true}))

	first, err := h.eng.Submit(ctx, "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hi"},
		orchestration.WithIdempotencyKey("submit-once"),
	)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	second, err := h.eng.Submit(ctx, "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hi"},
		orchestration.WithIdempotencyKey("submit-once"),
	)
	if !errors.Is(err, orchestrator.ErrDuplicateSubmission) {
		t.Fatalf("second Submit err = %v, want ErrDuplicateSubmission", err)
	}
	if second == nil || second.ID != first.ID {
		t.Errorf("second Submit returned different request: %v vs %v", second, first)
	}
}

func TestSubmitExhaustedRetriesDeadLetters(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 0
	h := newHarness(t, engine.WithConfig(cfg))
	ctx := context.Background()

	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		errorReply("model overloaded"))

	oreq, err := h.eng.Submit(ctx, "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 10*time.Second, "orchestration to fail", func() bool {
		stored, err := h.store.GetOrchestration(ctx, oreq.ID)
		return err == nil && stored.Status == orchestration.StatusFailed
	})

	entries, err := h.eng.DeadLetters(ctx, deadletter.ListOpts{})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.OrchestrationID != oreq.ID {
		t.Errorf("entry orchestration = %s, want %s", e.OrchestrationID, oreq.ID)
	}
	if e.WorkerType != worker.TypeAssistant {
		t.Errorf("entry worker type = %q, want assistant", e.WorkerType)
	}
	if e.Error == "" {
		t.Error("entry error is empty")
	}
}

func TestReplayDeadLetterCompletesOrchestration(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 0
	h := newHarness(t, engine.WithConfig(cfg))
	ctx := context.Background()

	// First attempt fails, the replay succeeds.
	var calls atomic.Int64
	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		func(in *message.Message, w *worker.Worker) *message.Message {
			if calls.Add(1) == 1 {
				return errorReply("transient failure")(in, w)
			}
			return successReply(map[string]any{"answer": "recovered"})(in, w)
		})

	oreq, err := h.eng.Submit(ctx, "user-1", workflow.TypeConversationContext,
		map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, 10*time.Second, "orchestration to fail", func() bool {
		stored, err := h.store.GetOrchestration(ctx, oreq.ID)
		return err == nil && stored.Status == orchestration.StatusFailed
	})

	entries, err := h.eng.DeadLetters(ctx, deadletter.ListOpts{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("DeadLetters: %v (%d entries)", err, len(entries))
	}

	a, err := h.eng.Replay(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if a.Status != orchestration.AssignmentPending {
		t.Errorf("replayed assignment status = %q, want pending", a.Status)
	}

	waitFor(t, 10*time.Second, "replayed orchestration to complete", func() bool {
		stored, err := h.store.GetOrchestration(ctx, oreq.ID)
		return err == nil && stored.Status == orchestration.StatusCompleted
	})

	replayed, err := h.store.GetDeadLetter(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("GetDeadLetter: %v", err)
	}
	if replayed.ReplayedAt == nil {
		t.Error("dead letter entry not marked replayed")
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Dispatch
// ────────────────────────────────────────────────────────────────────────────

func TestDispatchSingleRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.startWorker(t, worker.TypeAssistant,
		[]request.Type{request.TypeLLMInference},
		successReply(map[string]any{"text": "done"}))

	req := request.New(request.TypeLLMInference,
		map[string]any{"prompt": "hello"},
		request.Metadata{UserID: "user-1"},
	)
	resp, err := h.eng.Dispatch(ctx, req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != request.ResponsePending {
		t.Fatalf("dispatch response status = %q, want pending", resp.Status)
	}

	waitFor(t, 10*time.Second, "final response", func() bool {
		latest, err := h.store.LatestResponse(ctx, req.ID)
		return err == nil && latest.Status == request.ResponseSuccess
	})

	stored, err := h.store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if stored.Status != request.StatusCompleted {
		t.Errorf("request status = %q, want completed", stored.Status)
	}
}

func TestDispatchWithoutWorkersReturnsErrorResponse(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	req := request.New(request.TypeLLMInference,
		map[string]any{"prompt": "hello"},
		request.Metadata{UserID: "user-1"},
	)
	resp, err := h.eng.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != request.ResponseError {
		t.Fatalf("response status = %q, want error", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != request.CodeNoWorkerAvailable {
		t.Errorf("error = %v, want NO_WORKER_AVAILABLE", resp.Error)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Worker registry
// ────────────────────────────────────────────────────────────────────────────

func TestRegisterWorkerAndHeartbeat(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	w := worker.New(worker.TypeResume, nil, worker.Connection{Host: "localhost", Port: 9001})
	if err := h.eng.RegisterWorker(ctx, w); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	if err := h.eng.Heartbeat(ctx, w.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	stored, err := h.store.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if stored.LastHealthCheck == nil {
		t.Error("heartbeat did not set LastHealthCheck")
	}

	if err := h.eng.DeregisterWorker(ctx, w.ID); err != nil {
		t.Fatalf("DeregisterWorker: %v", err)
	}
	if _, err := h.store.GetWorker(ctx, w.ID); !errors.Is(err, orchestrator.ErrWorkerNotFound) {
		t.Errorf("after deregister: got %v, want ErrWorkerNotFound", err)
	}
}
