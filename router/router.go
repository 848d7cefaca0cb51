// Package router decides which worker(s) a job goes to.
//
// One component, two strategies:
//
//   - [Router.RouteWorkflow] — static routing: a fixed table maps a
//     workflow to an ordered sequence of worker types, modeling a
//     pipeline. Produces pending assignments appended to the
//     orchestration request.
//   - [Router.RouteSingle] — dynamic routing: filters a live candidate
//     pool by availability, health, and capability, then picks one via
//     the configured [Selector].
//
// The baseline selector takes the first eligible candidate;
// [LeastLoaded] upgrades selection using coordinator load counts.
package router

import (
	"context"
	"log/slog"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// Selector picks one worker from a non-empty eligible candidate list.
type Selector interface {
	Select(ctx context.Context, req *request.Request, candidates []*worker.Worker) *worker.Worker
}

// FirstAvailable is the baseline selection policy: the first eligible
// candidate wins.
type FirstAvailable struct{}

// Select returns the first candidate.
func (FirstAvailable) Select(_ context.Context, _ *request.Request, candidates []*worker.Worker) *worker.Worker {
	return candidates[0]
}

// LoadReporter reports how many assignments a worker currently holds.
// The coordinator package implements it.
type LoadReporter interface {
	WorkerLoad(ctx context.Context, workerID id.WorkerID) (int, error)
}

// LeastLoaded selects the candidate with the fewest outstanding
// assignments. Candidates whose load cannot be read are treated as
// unloaded, keeping selection best effort.
type LeastLoaded struct {
	Loads LoadReporter
}

// Select returns the least-loaded candidate, first candidate on ties.
func (s LeastLoaded) Select(ctx context.Context, _ *request.Request, candidates []*worker.Worker) *worker.Worker {
	best := candidates[0]
	bestLoad := s.load(ctx, best.ID)
	for _, c := range candidates[1:] {
		if l := s.load(ctx, c.ID); l < bestLoad {
			best, bestLoad = c, l
		}
	}
	return best
}

func (s LeastLoaded) load(ctx context.Context, workerID id.WorkerID) int {
	if s.Loads == nil {
		return 0
	}
	n, err := s.Loads.WorkerLoad(ctx, workerID)
	if err != nil {
		return 0
	}
	return n
}

// Router routes jobs to workers.
type Router struct {
	selector Selector
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithSelector sets the single-worker selection policy.
func WithSelector(s Selector) Option {
	return func(r *Router) { r.selector = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with the baseline first-available selector.
func New(opts ...Option) *Router {
	r := &Router{
		selector: FirstAvailable{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteSingle filters candidates to those available, healthy, and able
// to handle the request type, then selects one. The second return is
// false when no candidate qualifies — a normal outcome, never an error.
func (r *Router) RouteSingle(ctx context.Context, req *request.Request, candidates []*worker.Worker) (*worker.Worker, bool) {
	eligible := make([]*worker.Worker, 0, len(candidates))
	for _, w := range candidates {
		if w.IsAvailable() && w.IsHealthy() && w.CanHandle(req.Type) {
			eligible = append(eligible, w)
		}
	}

	if len(eligible) == 0 {
		r.logger.Debug("no eligible worker",
			slog.String("request_id", req.ID.String()),
			slog.String("request_type", string(req.Type)),
			slog.Int("candidates", len(candidates)),
		)
		return nil, false
	}

	return r.selector.Select(ctx, req, eligible), true
}

// workflowTable maps each multi-step workflow to its ordered worker
// pipeline.
var workflowTable = map[workflow.Type][]worker.Type{
	workflow.TypeResumeBuild:         {worker.TypeResume, worker.TypeAssistant, worker.TypeLatex},
	workflow.TypeExpertResearch:      {worker.TypeAgentTool, worker.TypeDataProcessing, worker.TypeAssistant},
	workflow.TypeConversationContext: {worker.TypeAssistant},
}

// RouteWorkflow resolves the ordered worker-type sequence for an
// orchestration request and appends one pending assignment per step.
// The produced list is returned in pipeline order; the router does not
// itself enforce runtime sequencing (the saga runner does).
func (r *Router) RouteWorkflow(oreq *orchestration.Request) []*orchestration.Assignment {
	types := r.workerTypes(oreq)

	assignments := make([]*orchestration.Assignment, 0, len(types))
	for _, wt := range types {
		a := orchestration.NewAssignment(wt)
		oreq.AddAssignment(a)
		assignments = append(assignments, a)
	}

	r.logger.Debug("routed workflow",
		slog.String("orchestration_id", oreq.ID.String()),
		slog.String("workflow", string(oreq.Workflow)),
		slog.Int("assignments", len(assignments)),
	)

	return assignments
}

func (r *Router) workerTypes(oreq *orchestration.Request) []worker.Type {
	if seq, ok := workflowTable[oreq.Workflow]; ok {
		return seq
	}

	switch oreq.Workflow {
	case workflow.TypeSingleWorker:
		if wt, ok := singleWorkerType(oreq.Data); ok {
			return []worker.Type{wt}
		}
		return nil
	default:
		// Custom (and anything unmapped): derive workers from flags.
		return customWorkerTypes(oreq.Data)
	}
}

// singleWorkerType resolves the one worker type for a single-worker job:
// the explicit workerType field when present, else heuristic indicator
// keys. Unknown worker-type strings fall back to assistant rather than
// erroring — a deliberate best-effort default.
func singleWorkerType(data map[string]any) (worker.Type, bool) {
	if v, ok := data["workerType"]; ok {
		if s, ok := v.(string); ok {
			wt := worker.Type(s)
			if wt.Valid() {
				return wt, true
			}
		}
		return worker.TypeAssistant, true
	}

	switch {
	case hasKey(data, "prompt", "message"):
		return worker.TypeAssistant, true
	case hasKey(data, "resume", "experiences"):
		return worker.TypeResume, true
	case hasKey(data, "latex", "tex"):
		return worker.TypeLatex, true
	case hasKey(data, "interview"):
		return worker.TypeInterview, true
	case hasKey(data, "schedule"):
		return worker.TypeScheduling, true
	}

	return "", false
}

// customWorkerTypes derives the worker set for a custom job from flags
// in its data payload.
func customWorkerTypes(data map[string]any) []worker.Type {
	var types []worker.Type
	if hasKey(data, "assistant") {
		types = append(types, worker.TypeAssistant)
	}
	if hasKey(data, "resume") {
		types = append(types, worker.TypeResume)
	}
	if hasKey(data, "latex") {
		types = append(types, worker.TypeLatex)
	}
	if hasKey(data, "tools", "search") {
		types = append(types, worker.TypeAgentTool)
	}
	if hasKey(data, "document", "upload") {
		types = append(types, worker.TypeDataProcessing)
	}
	return types
}

func hasKey(data map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := data[k]; ok {
			return true
		}
	}
	return false
}
