package contract

import "errors"

var (
	// Planning / responding failures. A planning failure aborts the run; a
	// responder failure is absorbed into a canned answer and never surfaces.
	ErrPlanningFailure  = errors.New("planning failed")
	ErrResponderFailure = errors.New("responder failed")

	// Provider-level failures reported by the chat model collaborator.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")

	// Per-invocation tool failures. Recoverable: recorded as failure
	// ToolResults, sibling invocations keep running.
	ErrUnknownTool   = errors.New("unknown tool")
	ErrToolTimeout   = errors.New("tool timed out")
	ErrToolExecution = errors.New("tool execution failed")

	// Resume-path misuse. Surfaced to the caller, never retried internally.
	ErrUnknownRun         = errors.New("unknown run")
	ErrRunAlreadyResolved = errors.New("run already resolved")

	ErrValidation = errors.New("validation failed")
)
