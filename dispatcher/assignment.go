package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/backoff"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
)

// Executor drives assignment outcomes for orchestration requests: start,
// completion cascade, and the failure path through retry with backoff and
// finally the dead letter store.
//
// Every transition reloads the aggregate from the store under a single
// mutex, so concurrent callers (dispatch loops, reply handlers, the stale
// sweep, replay) always modify the latest persisted copy instead of a stale
// in-memory one.
type Executor struct {
	mu             sync.Mutex
	orchestrations orchestration.Store
	deadletters    *deadletter.Service
	extensions     *ext.Registry
	bus            *event.Bus
	backoff        backoff.Strategy
	logger         *slog.Logger
}

// NewExecutor creates an assignment Executor.
func NewExecutor(
	orchestrations orchestration.Store,
	deadletters *deadletter.Service,
	extensions *ext.Registry,
	bus *event.Bus,
	bo backoff.Strategy,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		orchestrations: orchestrations,
		deadletters:    deadletters,
		extensions:     extensions,
		bus:            bus,
		backoff:        bo,
		logger:         logger,
	}
}

// load fetches the current aggregate and resolves the assignment on it.
// Callers must hold e.mu.
func (e *Executor) load(ctx context.Context, requestID id.OrchestrationID, assignmentID id.AssignmentID) (*orchestration.Request, *orchestration.Assignment, error) {
	oreq, err := e.orchestrations.GetOrchestration(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", requestID, err)
	}
	a, ok := oreq.Assignment(assignmentID)
	if !ok {
		return nil, nil, fmt.Errorf("assignment %s on %s: %w", assignmentID, requestID, orchestrator.ErrAssignmentNotFound)
	}
	return oreq, a, nil
}

// Start marks an assignment as processing on the given worker. The owning
// request moves to processing on its first dispatched assignment.
func (e *Executor) Start(ctx context.Context, requestID id.OrchestrationID, assignmentID id.AssignmentID, workerID id.WorkerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	oreq, a, err := e.load(ctx, requestID, assignmentID)
	if err != nil {
		return err
	}
	if err := a.Start(workerID); err != nil {
		return fmt.Errorf("start assignment %s: %w", a.ID, err)
	}
	if oreq.Status == orchestration.StatusPending {
		oreq.UpdateStatus(orchestration.StatusProcessing, nil)
	}
	if err := e.orchestrations.UpdateOrchestration(ctx, oreq); err != nil {
		return fmt.Errorf("persist %s after start: %w", oreq.ID, err)
	}

	e.publish(ctx, event.NameAssignmentStarted, a, oreq.UserID)
	return nil
}

// Complete records a successful worker result. When the last assignment
// turns terminal, the owning request completes with the merged per-worker
// results and the completion hook fires.
func (e *Executor) Complete(ctx context.Context, requestID id.OrchestrationID, assignmentID id.AssignmentID, response map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	oreq, a, err := e.load(ctx, requestID, assignmentID)
	if err != nil {
		return err
	}
	if err := a.Complete(response); err != nil {
		return fmt.Errorf("complete assignment %s: %w", a.ID, err)
	}

	if oreq.AllWorkersComplete() {
		oreq.UpdateStatus(orchestration.StatusCompleted, mergeResults(oreq))
	}
	if err := e.orchestrations.UpdateOrchestration(ctx, oreq); err != nil {
		return fmt.Errorf("persist %s after completion: %w", oreq.ID, err)
	}

	if _, err := e.bus.Publish(ctx, event.AssignmentTerminal(a.ID), terminalPayload(a), oreq.UserID); err != nil {
		return fmt.Errorf("publish terminal event for %s: %w", a.ID, err)
	}

	if oreq.Status == orchestration.StatusCompleted {
		e.extensions.EmitOrchestrationCompleted(ctx, oreq, elapsed(oreq))
		e.publish(ctx, event.NameRequestCompleted, a, oreq.UserID)
	}
	return nil
}

// Fail records a worker failure. While retry budget remains the assignment
// returns to pending and the returned delay tells the caller how long to
// wait before re-dispatching. With the budget exhausted the assignment is
// dead-lettered; when that leaves every assignment terminal, the owning
// request fails.
func (e *Executor) Fail(ctx context.Context, requestID id.OrchestrationID, assignmentID id.AssignmentID, errMsg string) (time.Duration, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oreq, a, err := e.load(ctx, requestID, assignmentID)
	if err != nil {
		return 0, false, err
	}
	if err := a.Fail(errMsg); err != nil {
		return 0, false, fmt.Errorf("fail assignment %s: %w", a.ID, err)
	}

	if a.CanRetry() {
		return e.scheduleRetry(ctx, oreq, a)
	}
	return 0, false, e.sendToDeadLetter(ctx, oreq, a, errMsg)
}

// scheduleRetry resets the assignment to pending and reports the backoff
// delay for the next attempt.
func (e *Executor) scheduleRetry(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment) (time.Duration, bool, error) {
	if err := a.Retry(); err != nil {
		return 0, false, fmt.Errorf("retry assignment %s: %w", a.ID, err)
	}
	delay := e.backoff.Delay(a.RetryCount)
	nextRunAt := time.Now().UTC().Add(delay)

	if err := e.orchestrations.UpdateOrchestration(ctx, oreq); err != nil {
		return 0, false, fmt.Errorf("persist %s for retry: %w", oreq.ID, err)
	}

	e.extensions.EmitAssignmentRetrying(ctx, a, a.RetryCount, nextRunAt)
	e.publish(ctx, event.NameAssignmentRetried, a, oreq.UserID)

	e.logger.Info("assignment scheduled for retry",
		slog.String("assignment_id", a.ID.String()),
		slog.String("worker_type", string(a.WorkerType)),
		slog.Int("attempt", a.RetryCount),
		slog.Int("max_retries", a.MaxRetries),
		slog.Duration("delay", delay),
	)
	return delay, true, nil
}

// sendToDeadLetter records the exhausted assignment in the dead letter
// store and fails the owning request once every assignment is terminal.
func (e *Executor) sendToDeadLetter(ctx context.Context, oreq *orchestration.Request, a *orchestration.Assignment, errMsg string) error {
	if oreq.AllWorkersComplete() {
		oreq.Fail(errMsg)
	}
	if err := e.orchestrations.UpdateOrchestration(ctx, oreq); err != nil {
		return fmt.Errorf("persist %s after exhausted retries: %w", oreq.ID, err)
	}

	if e.deadletters != nil {
		if dlErr := e.deadletters.Push(ctx, oreq, a); dlErr != nil {
			e.logger.Error("failed to push assignment to dead letter store",
				slog.String("assignment_id", a.ID.String()),
				slog.String("error", dlErr.Error()),
			)
		}
	}

	if _, err := e.bus.Publish(ctx, event.AssignmentTerminal(a.ID), terminalPayload(a), oreq.UserID); err != nil {
		return fmt.Errorf("publish terminal event for %s: %w", a.ID, err)
	}

	e.extensions.EmitAssignmentDeadLettered(ctx, a, fmt.Errorf("%s", errMsg))
	e.publish(ctx, event.NameAssignmentDeadlettered, a, oreq.UserID)

	if oreq.Status == orchestration.StatusFailed {
		e.extensions.EmitOrchestrationFailed(ctx, oreq, fmt.Errorf("%s", errMsg))
		e.publish(ctx, event.NameRequestFailed, a, oreq.UserID)
	}

	e.logger.Warn("assignment dead-lettered after exhausting retries",
		slog.String("assignment_id", a.ID.String()),
		slog.String("worker_type", string(a.WorkerType)),
		slog.Int("retry_count", a.RetryCount),
		slog.String("error", errMsg),
	)
	return nil
}

// publish emits a best-effort lifecycle event; failures are logged, not
// propagated, because the event log is advisory on these paths.
func (e *Executor) publish(ctx context.Context, name string, a *orchestration.Assignment, userID string) {
	if _, err := e.bus.Publish(ctx, name, terminalPayload(a), userID); err != nil {
		e.logger.Warn("publish lifecycle event",
			slog.String("event", name),
			slog.String("assignment_id", a.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// terminalPayload is the compact event payload describing an assignment's
// current state.
func terminalPayload(a *orchestration.Assignment) []byte {
	b, _ := json.Marshal(map[string]any{
		"assignment_id": a.ID.String(),
		"worker_type":   string(a.WorkerType),
		"status":        string(a.Status),
		"retry_count":   a.RetryCount,
		"error":         a.Error,
	})
	return b
}

// mergeResults folds completed assignment responses into one result map
// keyed by worker type.
func mergeResults(oreq *orchestration.Request) map[string]any {
	merged := make(map[string]any)
	for _, a := range oreq.Assignments() {
		if a.Status == orchestration.AssignmentCompleted && a.Response != nil {
			merged[string(a.WorkerType)] = a.Response
		}
	}
	return merged
}

// elapsed is the end-to-end orchestration time, measured to CompletedAt
// when set.
func elapsed(oreq *orchestration.Request) time.Duration {
	end := time.Now().UTC()
	if oreq.CompletedAt != nil {
		end = *oreq.CompletedAt
	}
	return end.Sub(oreq.CreatedAt)
}
