package router_test

import (
	"context"
	"testing"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/router"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

func newWorker(typ worker.Type, status worker.Status, handles ...request.Type) *worker.Worker {
	w := worker.New(typ, []worker.Capability{{
		Name:                  string(typ),
		SupportedRequestTypes: handles,
		MaxConcurrency:        4,
	}}, worker.Connection{Host: "localhost", Port: 9000, Protocol: "tcp"})
	w.Status = status
	return w
}

func assignmentTypes(assignments []*orchestration.Assignment) []worker.Type {
	out := make([]worker.Type, len(assignments))
	for i, a := range assignments {
		out[i] = a.WorkerType
	}
	return out
}

func TestRouteWorkflow_StaticTable(t *testing.T) {
	tests := []struct {
		name string
		wf   workflow.Type
		data map[string]any
		want []worker.Type
	}{
		{
			name: "resume build pipeline",
			wf:   workflow.TypeResumeBuild,
			data: map[string]any{"resume": "x", "jobDescription": "y", "format": "pdf"},
			want: []worker.Type{worker.TypeResume, worker.TypeAssistant, worker.TypeLatex},
		},
		{
			name: "expert research pipeline",
			wf:   workflow.TypeExpertResearch,
			data: map[string]any{"query": "q"},
			want: []worker.Type{worker.TypeAgentTool, worker.TypeDataProcessing, worker.TypeAssistant},
		},
		{
			name: "conversation context",
			wf:   workflow.TypeConversationContext,
			data: map[string]any{"conversationId": "c1"},
			want: []worker.Type{worker.TypeAssistant},
		},
		{
			name: "single worker by explicit type",
			wf:   workflow.TypeSingleWorker,
			data: map[string]any{"workerType": "latex"},
			want: []worker.Type{worker.TypeLatex},
		},
		{
			name: "single worker unknown type falls back to assistant",
			wf:   workflow.TypeSingleWorker,
			data: map[string]any{"workerType": "quantum"},
			want: []worker.Type{worker.TypeAssistant},
		},
		{
			name: "single worker by prompt heuristic",
			wf:   workflow.TypeSingleWorker,
			data: map[string]any{"prompt": "hi"},
			want: []worker.Type{worker.TypeAssistant},
		},
		{
			name: "single worker by experiences heuristic",
			wf:   workflow.TypeSingleWorker,
			data: map[string]any{"experiences": []any{}},
			want: []worker.Type{worker.TypeResume},
		},
		{
			name: "single worker with no match routes nothing",
			wf:   workflow.TypeSingleWorker,
			data: map[string]any{"foo": 1},
			want: nil,
		},
		{
			name: "custom derives from flags",
			wf:   workflow.TypeCustom,
			data: map[string]any{"assistant": true, "tools": true, "upload": true},
			want: []worker.Type{worker.TypeAssistant, worker.TypeAgentTool, worker.TypeDataProcessing},
		},
		{
			name: "custom with no flags routes nothing",
			wf:   workflow.TypeCustom,
			data: map[string]any{},
			want: nil,
		},
	}

	r := router.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oreq := orchestration.NewRequest("u1", tt.wf, tt.data)
			got := r.RouteWorkflow(oreq)

			gotTypes := assignmentTypes(got)
			if len(gotTypes) != len(tt.want) {
				t.Fatalf("got %d assignments %v, want %v", len(got), gotTypes, tt.want)
			}
			for i := range tt.want {
				if gotTypes[i] != tt.want[i] {
					t.Errorf("assignment[%d] = %q, want %q", i, gotTypes[i], tt.want[i])
				}
			}

			// Every produced assignment starts pending and is owned by the
			// orchestration request.
			owned := oreq.Assignments()
			if len(owned) != len(got) {
				t.Fatalf("aggregate owns %d assignments, router returned %d", len(owned), len(got))
			}
			for _, a := range got {
				if a.Status != orchestration.AssignmentPending {
					t.Errorf("assignment status = %q, want pending", a.Status)
				}
				if a.RequestID != oreq.ID {
					t.Errorf("assignment request id = %v, want %v", a.RequestID, oreq.ID)
				}
			}
		})
	}
}

func TestRouteSingle_Filtering(t *testing.T) {
	r := router.New()
	req := request.New(request.TypeLatexCompilation, map[string]any{"latex": "doc"}, request.Metadata{UserID: "u1"})

	unhealthy := newWorker(worker.TypeLatex, worker.StatusUnhealthy, request.TypeLatexCompilation)
	busy := newWorker(worker.TypeLatex, worker.StatusBusy, request.TypeLatexCompilation)
	wrongType := newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference)
	eligible := newWorker(worker.TypeLatex, worker.StatusAvailable, request.TypeLatexCompilation)

	got, ok := r.RouteSingle(context.Background(), req, []*worker.Worker{unhealthy, busy, wrongType, eligible})
	if !ok {
		t.Fatal("expected a worker")
	}
	if got.ID != eligible.ID {
		t.Errorf("selected %v, want %v", got.ID, eligible.ID)
	}
}

func TestRouteSingle_NoneEligible(t *testing.T) {
	r := router.New()
	req := request.New(request.TypeResumeAnalysis, map[string]any{}, request.Metadata{UserID: "u1"})

	candidates := []*worker.Worker{
		newWorker(worker.TypeResume, worker.StatusUnhealthy, request.TypeResumeAnalysis),
		newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference),
	}

	if w, ok := r.RouteSingle(context.Background(), req, candidates); ok {
		t.Errorf("expected no worker, got %v", w.ID)
	}

	if w, ok := r.RouteSingle(context.Background(), req, nil); ok {
		t.Errorf("expected no worker for empty pool, got %v", w.ID)
	}
}

// staticLoads is a fixed-load LoadReporter for selection tests.
type staticLoads map[id.WorkerID]int

func (s staticLoads) WorkerLoad(_ context.Context, workerID id.WorkerID) (int, error) {
	return s[workerID], nil
}

func TestRouteSingle_LeastLoaded(t *testing.T) {
	req := request.New(request.TypeLLMInference, map[string]any{"prompt": "hi"}, request.Metadata{UserID: "u1"})

	a := newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference)
	b := newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference)
	c := newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference)

	loads := staticLoads{a.ID: 5, b.ID: 1, c.ID: 3}
	r := router.New(router.WithSelector(router.LeastLoaded{Loads: loads}))

	got, ok := r.RouteSingle(context.Background(), req, []*worker.Worker{a, b, c})
	if !ok {
		t.Fatal("expected a worker")
	}
	if got.ID != b.ID {
		t.Errorf("selected %v with load %d, want least-loaded %v", got.ID, loads[got.ID], b.ID)
	}
}

func TestRouteSingle_FirstAvailableBaseline(t *testing.T) {
	req := request.New(request.TypeLLMInference, map[string]any{"prompt": "hi"}, request.Metadata{UserID: "u1"})

	a := newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference)
	b := newWorker(worker.TypeAssistant, worker.StatusAvailable, request.TypeLLMInference)

	r := router.New()
	got, ok := r.RouteSingle(context.Background(), req, []*worker.Worker{a, b})
	if !ok {
		t.Fatal("expected a worker")
	}
	if got.ID != a.ID {
		t.Errorf("baseline policy should pick the first candidate, got %v", got.ID)
	}
}
