package contract

import (
	"time"
)

// SessionKey identifies one conversation. Memory is scoped per (user, session).
type SessionKey struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (k SessionKey) String() string {
	return k.UserID + "/" + k.SessionID
}

// Turn is one user utterance plus the eventual assistant answer. Immutable
// once the responder commits it to the memory store.
type Turn struct {
	TurnID    string `json:"turn_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Question  string `json:"question"`
	Answer    string `json:"answer,omitempty"`
	// Feedback carries operator feedback from a modify decision so the next
	// planning pass sees it in the conversation history.
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Turn) Key() SessionKey {
	return SessionKey{UserID: t.UserID, SessionID: t.SessionID}
}

// ToolInvocation is one requested capability call inside a Plan. Planner
// output is untrusted input: the tool name is checked against the registry
// before execution, never treated as code.
type ToolInvocation struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	// Strict requires the arguments to match the tool's declared schema
	// before execution.
	Strict bool `json:"strict,omitempty"`
}

// Plan is the planner's proposal for one run. Immutable after creation; once
// approved it is never re-planned within the same run.
type Plan struct {
	Invocations []ToolInvocation `json:"invocations,omitempty"`
	Confidence  float64          `json:"confidence"`
	Reasoning   string           `json:"reasoning,omitempty"`
}

func (p Plan) Empty() bool {
	return len(p.Invocations) == 0
}

// FailureKind classifies a failed tool invocation.
type FailureKind string

const (
	FailureUnknownTool FailureKind = "unknown_tool"
	FailureBadArgs     FailureKind = "bad_args"
	FailureTimeout     FailureKind = "timeout"
	FailureExecution   FailureKind = "execution"
)

// ToolResult is the outcome of executing one ToolInvocation: either a success
// payload or a failure descriptor. Exactly one per invocation that reached
// execution.
type ToolResult struct {
	Tool     string      `json:"tool"`
	Result   any         `json:"result,omitempty"`
	FailKind FailureKind `json:"fail_kind,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func (r ToolResult) Failed() bool {
	return r.FailKind != ""
}

// DecisionAction is a human verdict on a suspended plan.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
	DecisionModify  DecisionAction = "modify"
)

func (a DecisionAction) Valid() bool {
	switch a {
	case DecisionApprove, DecisionReject, DecisionModify:
		return true
	}
	return false
}

// ApprovalDecision resolves exactly one ApprovalRequest.
type ApprovalDecision struct {
	Action   DecisionAction `json:"action"`
	Feedback string         `json:"feedback,omitempty"`
}

// ApprovalRequest is emitted when the gate suspends a run. It exists only
// while the run is suspended.
type ApprovalRequest struct {
	RunID      string    `json:"run_id"`
	Question   string    `json:"question"`
	Plan       Plan      `json:"plan"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunStatus tags the orchestrator's position in the workflow. Routing is an
// explicit switch over this closed set.
type RunStatus string

const (
	StatusPlanning         RunStatus = "planning"
	StatusAwaitingApproval RunStatus = "awaiting_approval"
	StatusExecuting        RunStatus = "executing"
	StatusResponding       RunStatus = "responding"
	StatusCompleted        RunStatus = "completed"
	StatusAborted          RunStatus = "aborted"
)

func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// RunState is the unit the orchestrator persists. All run-scoped data lives
// here so a suspended run can resume on a different goroutine or process.
type RunState struct {
	RunID       string            `json:"run_id"`
	Turn        Turn              `json:"turn"`
	Status      RunStatus         `json:"status"`
	Plan        *Plan             `json:"plan,omitempty"`
	Approval    *ApprovalRequest  `json:"approval,omitempty"`
	Decision    *ApprovalDecision `json:"decision,omitempty"`
	ToolResults []ToolResult      `json:"tool_results,omitempty"`
	Answer      string            `json:"answer,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// OutcomeKind classifies the result of Start/Resume.
type OutcomeKind string

const (
	OutcomeCompleted       OutcomeKind = "completed"
	OutcomePendingApproval OutcomeKind = "pending_approval"
	OutcomeFailed          OutcomeKind = "failed"
)

// RunOutcome is what Start/Resume hands back to the transport.
type RunOutcome struct {
	Kind     OutcomeKind      `json:"kind"`
	RunID    string           `json:"run_id"`
	Answer   string           `json:"answer,omitempty"`
	Approval *ApprovalRequest `json:"approval,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	// Retryable distinguishes "retry advisable" from terminal aborts.
	Retryable bool `json:"retryable,omitempty"`
}
