// Package workflow defines the workflow type enum, the job validator,
// and the workflow pattern detector.
//
// A workflow is a named multi-step job pattern with a fixed worker
// sequence (the routing table lives in package router). Callers may name
// a workflow explicitly; when they don't, [Detect] classifies the job
// from its data payload, best effort.
package workflow

// Type names a multi-step job pattern.
type Type string

const (
	// TypeResumeBuild is the resume tailoring pipeline:
	// resume → assistant → latex.
	TypeResumeBuild Type = "resume_build"
	// TypeExpertResearch is the research pipeline:
	// agent-tool → data-processing → assistant.
	TypeExpertResearch Type = "expert_research"
	// TypeConversationContext is single-worker conversational continuation.
	TypeConversationContext Type = "conversation_context"
	// TypeSingleWorker is one opaque request for one worker.
	TypeSingleWorker Type = "single_worker"
	// TypeCustom derives its worker set from flags in the data payload.
	TypeCustom Type = "custom"
)

// Valid reports whether t is a recognized workflow type.
func (t Type) Valid() bool {
	switch t {
	case TypeResumeBuild, TypeExpertResearch, TypeConversationContext,
		TypeSingleWorker, TypeCustom:
		return true
	}
	return false
}

// has reports whether any of the given keys is present in data.
func has(data map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := data[k]; ok {
			return true
		}
	}
	return false
}
