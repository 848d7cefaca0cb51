package workflow

import "fmt"

// Result is the outcome of validating a submitted job. Failures are
// reported as values, never raised, so callers can surface a client
// error without an exception path.
type Result struct {
	Valid bool
	Error string
}

func invalid(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

var valid = Result{Valid: true}

// Validate rejects malformed jobs before routing. It is a pure function
// with no side effects.
func Validate(wf Type, userID string, data map[string]any) Result {
	if wf == "" {
		return invalid("workflow is required")
	}
	if !wf.Valid() {
		return invalid("unknown workflow %q", wf)
	}
	if data == nil {
		return invalid("data payload is required")
	}
	if userID == "" {
		return invalid("userId is required")
	}

	switch wf {
	case TypeResumeBuild:
		if !has(data, "experiences", "resume") {
			return invalid("resume_build requires experiences or resume in data")
		}
	case TypeExpertResearch:
		if !has(data, "query", "research", "topic") {
			return invalid("expert_research requires query, research, or topic in data")
		}
	case TypeConversationContext:
		if !has(data, "conversationId", "message") {
			return invalid("conversation_context requires conversationId or message in data")
		}
	}

	return valid
}
