package workflow

// Detect classifies a job into a workflow type. An explicitly named
// workflow is returned unchanged, regardless of data contents. Otherwise
// classification walks a fixed precedence, first match wins; ambiguous
// payloads fall through to TypeCustom, which the router treats as
// "derive workers from flags".
//
// This is a best-effort heuristic, not a guarantee.
func Detect(explicit Type, data map[string]any) Type {
	if explicit != "" {
		return explicit
	}

	if isResumeBuild(data) {
		return TypeResumeBuild
	}
	if isExpertResearch(data) {
		return TypeExpertResearch
	}
	if has(data, "conversationId", "context", "history") {
		return TypeConversationContext
	}
	if isSingleWorker(data) {
		return TypeSingleWorker
	}

	return TypeCustom
}

func isResumeBuild(data map[string]any) bool {
	if !has(data, "experiences", "resume") {
		return false
	}
	if !has(data, "jobDescription", "tailoring") {
		return false
	}
	return data["format"] == "pdf" || has(data, "compile")
}

func isExpertResearch(data map[string]any) bool {
	// A bare research query is enough; the worker chain supplies the
	// synthesis and tooling stages.
	if has(data, "query", "topic") {
		return true
	}
	if !has(data, "research", "sources") {
		return false
	}
	if !has(data, "synthesis", "analysis") {
		return false
	}
	return has(data, "sources", "tools")
}

// singleWorkerIndicators are the payload keys that mark a job as one
// opaque request for one worker.
var singleWorkerIndicators = []string{
	"prompt", "message", "resume", "latex", "document", "interview", "schedule",
}

func isSingleWorker(data map[string]any) bool {
	if has(data, "workerType") {
		return true
	}
	return has(data, singleWorkerIndicators...)
}
