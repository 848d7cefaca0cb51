package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/ext"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/middleware"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/router"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
)

// Coordinator is the admission-control port the dispatcher consults
// before handing a request to a chosen worker. A nil Coordinator means
// no admission control.
type Coordinator interface {
	// AssignRequest reserves capacity on the worker for the request.
	AssignRequest(ctx context.Context, req *request.Request, w *worker.Worker) error

	// ReleaseWorker returns the capacity reserved for one assignment.
	ReleaseWorker(ctx context.Context, workerID id.WorkerID) error
}

// Dispatcher routes single requests to workers over the message bus and
// ingests their asynchronous replies.
type Dispatcher struct {
	requests    request.Store
	responses   request.ResponseStore
	workers     worker.Store
	publisher   message.Publisher
	router      *router.Router
	coordinator Coordinator
	extensions  *ext.Registry
	mw          middleware.Middleware
	logger      *slog.Logger
}

// New creates a Dispatcher. The middleware chain wraps the route-and-publish
// step of every Execute call.
func New(
	requests request.Store,
	responses request.ResponseStore,
	workers worker.Store,
	publisher message.Publisher,
	rt *router.Router,
	coordinator Coordinator,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Dispatcher {
	return &Dispatcher{
		requests:    requests,
		responses:   responses,
		workers:     workers,
		publisher:   publisher,
		router:      rt,
		coordinator: coordinator,
		extensions:  extensions,
		mw:          middleware.Chain(mws...),
		logger:      logger,
	}
}

// Execute dispatches a request to an eligible worker.
//
// The request is persisted before anything else; a storage failure
// propagates and nothing is dispatched. Routing and publish failures are
// recorded as error responses (NO_WORKER_AVAILABLE, MESSAGE_PUBLISH_FAILED)
// so the caller always gets a persisted outcome. On success the request is
// marked processing and a pending response is returned — the final outcome
// arrives later through OnWorkerReply.
func (d *Dispatcher) Execute(ctx context.Context, req *request.Request) (*request.Response, error) {
	if err := d.requests.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save request %s: %w", req.ID, err)
	}

	var resp *request.Response
	err := d.mw(ctx, req, func(ctx context.Context) error {
		var dispatchErr error
		resp, dispatchErr = d.dispatch(ctx, req)
		return dispatchErr
	})
	return resp, err
}

// dispatch is the terminal handler under the middleware chain.
func (d *Dispatcher) dispatch(ctx context.Context, req *request.Request) (*request.Response, error) {
	w, err := d.selectWorker(ctx, req)
	if err != nil {
		resp := request.Errorf(req.ID, request.CodeNoWorkerAvailable,
			fmt.Sprintf("no worker available for request type %q", req.Type), err.Error())
		if saveErr := d.responses.SaveResponse(ctx, resp); saveErr != nil {
			return nil, fmt.Errorf("save no-worker response for %s: %w", req.ID, saveErr)
		}
		d.logger.Warn("no worker available",
			slog.String("request_id", req.ID.String()),
			slog.String("request_type", string(req.Type)),
		)
		// Routing exhaustion is a normal outcome, reported through the
		// persisted error response.
		return resp, nil
	}

	msg := d.buildMessage(req, w)
	if pubErr := d.publisher.PublishToWorker(ctx, w.ID, msg); pubErr != nil {
		if d.coordinator != nil {
			if relErr := d.coordinator.ReleaseWorker(ctx, w.ID); relErr != nil {
				d.logger.Error("release after failed publish",
					slog.String("worker_id", w.ID.String()),
					slog.String("error", relErr.Error()),
				)
			}
		}
		resp := request.Errorf(req.ID, request.CodeMessagePublishFailed,
			"failed to publish dispatch message", pubErr.Error())
		if saveErr := d.responses.SaveResponse(ctx, resp); saveErr != nil {
			return nil, fmt.Errorf("save publish-failure response for %s: %w", req.ID, saveErr)
		}
		return resp, nil
	}

	d.extensions.EmitMessagePublished(ctx, msg)

	if err := d.requests.UpdateRequestStatus(ctx, req.ID, request.StatusProcessing); err != nil {
		return nil, fmt.Errorf("mark request %s processing: %w", req.ID, err)
	}
	req.Status = request.StatusProcessing

	resp := request.Pending(req.ID)
	if err := d.responses.SaveResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("save pending response for %s: %w", req.ID, err)
	}

	d.logger.Info("request dispatched",
		slog.String("request_id", req.ID.String()),
		slog.String("request_type", string(req.Type)),
		slog.String("worker_id", w.ID.String()),
		slog.String("worker_type", string(w.Type)),
	)
	return resp, nil
}

// selectWorker routes the request to an eligible worker and reserves
// capacity on it. Candidates that fail admission are skipped in routing
// order, so a saturated worker never blocks an available peer.
func (d *Dispatcher) selectWorker(ctx context.Context, req *request.Request) (*worker.Worker, error) {
	candidates, err := d.workers.FindAvailableWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("find workers: %w", err)
	}

	for len(candidates) > 0 {
		w, ok := d.router.RouteSingle(ctx, req, candidates)
		if !ok {
			break
		}
		if d.coordinator == nil {
			return w, nil
		}
		if err := d.coordinator.AssignRequest(ctx, req, w); err == nil {
			return w, nil
		}
		// Admission refused: drop this worker and re-route.
		next := candidates[:0]
		for _, c := range candidates {
			if c.ID != w.ID {
				next = append(next, c)
			}
		}
		candidates = next
	}
	return nil, orchestrator.ErrNoWorkerAvailable
}

// buildMessage constructs the dispatch message for a request. The
// correlation ID is always the request's own ID so the reply can be
// matched back.
func (d *Dispatcher) buildMessage(req *request.Request, w *worker.Worker) *message.Message {
	msg := message.New(message.TypeRequest, req.Payload)
	msg.CorrelationID = req.ID.String()
	msg.Headers.Source = message.SourceOrchestrator
	msg.Headers.Destination = w.ID.String()
	msg.Headers.ContentType = message.ContentTypeJSON
	msg.Headers.Priority = req.Metadata.Priority
	msg.Headers.TTL = req.Metadata.Timeout
	msg.Headers.UserID = req.Metadata.UserID
	msg.Headers.SessionID = req.Metadata.SessionID
	return msg
}

// OnWorkerReply ingests a worker reply message. The originating request
// is resolved by correlation ID; its status and a final response are
// persisted. The returned response mirrors what was stored.
func (d *Dispatcher) OnWorkerReply(ctx context.Context, msg *message.Message) (*request.Response, error) {
	reqID, err := id.ParseRequestID(msg.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("reply correlation id %q: %w", msg.CorrelationID, err)
	}

	req, err := d.requests.GetRequest(ctx, reqID)
	if err != nil {
		return nil, fmt.Errorf("reply for %s: %w", reqID, err)
	}

	var resp *request.Response
	status := request.StatusCompleted
	if msg.Error != nil {
		resp = request.Errorf(req.ID, request.CodeWorkerError, msg.Error.Message, msg.Error.Details)
		status = request.StatusFailed
	} else {
		resp = request.Success(req.ID, msg.Payload)
	}

	if err := d.responses.SaveResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("save reply response for %s: %w", req.ID, err)
	}
	if err := d.requests.UpdateRequestStatus(ctx, req.ID, status); err != nil {
		return nil, fmt.Errorf("finalize request %s: %w", req.ID, err)
	}

	d.releaseReplySource(ctx, msg)
	d.extensions.EmitWorkerReply(ctx, msg)

	d.logger.Info("worker reply ingested",
		slog.String("request_id", req.ID.String()),
		slog.String("status", string(status)),
	)
	return resp, nil
}

// releaseReplySource frees coordinator capacity for the replying worker,
// identified by the message source header when it parses as a worker ID.
func (d *Dispatcher) releaseReplySource(ctx context.Context, msg *message.Message) {
	if d.coordinator == nil {
		return
	}
	workerID, err := id.ParseWorkerID(msg.Headers.Source)
	if err != nil {
		return
	}
	if err := d.coordinator.ReleaseWorker(ctx, workerID); err != nil {
		d.logger.Warn("release reply source",
			slog.String("worker_id", workerID.String()),
			slog.String("error", err.Error()),
		)
	}
}
