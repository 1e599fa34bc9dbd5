package contract

import "context"

// ChatModel is the language-model collaborator. Implementations must map
// provider failures to ErrProviderUnavailable / ErrProviderTimeout.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// PlanRequest is the planner's input: the new turn plus a bounded window of
// prior turns selected by the caller.
type PlanRequest struct {
	Question string
	History  []Turn
}

type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Plan, error)
}

// RespondRequest carries everything the responder may synthesize from.
type RespondRequest struct {
	Question string
	History  []Turn
	Plan     Plan
	Results  []ToolResult
	// Rejected marks the reject/modify resume path; Feedback is the
	// operator's free-text, if any.
	Rejected bool
	Feedback string
}

type Responder interface {
	Respond(ctx context.Context, req RespondRequest) (string, error)
}

// MemoryStore is the append-only session-scoped turn log.
type MemoryStore interface {
	Append(ctx context.Context, key SessionKey, turn Turn) error
	Recent(ctx context.Context, key SessionKey, limit int) ([]Turn, error)
}
