// Package state owns RunState construction and transitions. The status set is
// closed; every move between statuses goes through Transition so an illegal
// jump is caught at the boundary instead of surfacing as a stuck run.
package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

var (
	ErrNilRunState       = errors.New("run state is nil")
	ErrEmptyRunID        = errors.New("run id is empty")
	ErrInvalidTransition = errors.New("invalid run transition")
	ErrPlanMissing       = errors.New("plan is missing")
)

// transitions maps each status to the statuses it may move to.
var transitions = map[contractx.RunStatus][]contractx.RunStatus{
	contractx.StatusPlanning: {
		contractx.StatusAwaitingApproval,
		contractx.StatusExecuting,
		contractx.StatusResponding,
		contractx.StatusAborted,
	},
	contractx.StatusAwaitingApproval: {
		contractx.StatusExecuting,
		contractx.StatusResponding,
		contractx.StatusAborted,
	},
	contractx.StatusExecuting: {
		contractx.StatusResponding,
		contractx.StatusAborted,
	},
	contractx.StatusResponding: {
		contractx.StatusCompleted,
		contractx.StatusAborted,
	},
}

// NewRunState creates a run at the planning position for one turn.
func NewRunState(runID string, turn contractx.Turn, now time.Time) (*contractx.RunState, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}
	turn.RunID = runID
	return &contractx.RunState{
		RunID:     runID,
		Turn:      turn,
		Status:    contractx.StatusPlanning,
		UpdatedAt: now.UTC(),
	}, nil
}

// Transition moves the run to next, rejecting moves the status machine does
// not allow. Terminal statuses accept no further transitions.
func Transition(rs *contractx.RunState, next contractx.RunStatus, now time.Time) error {
	if rs == nil {
		return ErrNilRunState
	}
	for _, allowed := range transitions[rs.Status] {
		if next == allowed {
			rs.Status = next
			rs.UpdatedAt = now.UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rs.Status, next)
}

// AttachPlan records the planner's output. A plan is set exactly once per run.
func AttachPlan(rs *contractx.RunState, plan contractx.Plan, now time.Time) error {
	if rs == nil {
		return ErrNilRunState
	}
	if rs.Plan != nil {
		return fmt.Errorf("%w: plan already attached to run %s", ErrInvalidTransition, rs.RunID)
	}
	rs.Plan = &plan
	rs.UpdatedAt = now.UTC()
	return nil
}

// Suspend marks the run awaiting approval and constructs its ApprovalRequest.
// A run has at most one outstanding request.
func Suspend(rs *contractx.RunState, now time.Time) (contractx.ApprovalRequest, error) {
	if rs == nil {
		return contractx.ApprovalRequest{}, ErrNilRunState
	}
	if rs.Plan == nil {
		return contractx.ApprovalRequest{}, ErrPlanMissing
	}
	if rs.Approval != nil {
		return contractx.ApprovalRequest{}, fmt.Errorf("%w: run %s already has a pending approval", ErrInvalidTransition, rs.RunID)
	}
	if err := Transition(rs, contractx.StatusAwaitingApproval, now); err != nil {
		return contractx.ApprovalRequest{}, err
	}
	req := contractx.ApprovalRequest{
		RunID:      rs.RunID,
		Question:   rs.Turn.Question,
		Plan:       *rs.Plan,
		Confidence: rs.Plan.Confidence,
		CreatedAt:  now.UTC(),
	}
	rs.Approval = &req
	return req, nil
}

// ApplyDecision records a human verdict and routes the run: approve goes to
// tool execution, reject/modify skip straight to the responder.
func ApplyDecision(rs *contractx.RunState, decision contractx.ApprovalDecision, now time.Time) error {
	if rs == nil {
		return ErrNilRunState
	}
	if rs.Status != contractx.StatusAwaitingApproval {
		return fmt.Errorf("%w: run %s is %s, not awaiting approval", ErrInvalidTransition, rs.RunID, rs.Status)
	}
	if !decision.Action.Valid() {
		return fmt.Errorf("%w: decision action %q", contractx.ErrValidation, decision.Action)
	}
	rs.Decision = &decision
	next := contractx.StatusResponding
	if decision.Action == contractx.DecisionApprove {
		next = contractx.StatusExecuting
	}
	return Transition(rs, next, now)
}

// Complete stores the final answer and moves the run to completed.
func Complete(rs *contractx.RunState, answer string, now time.Time) error {
	if rs == nil {
		return ErrNilRunState
	}
	if err := Transition(rs, contractx.StatusCompleted, now); err != nil {
		return err
	}
	rs.Answer = answer
	rs.Turn.Answer = answer
	rs.Approval = nil
	return nil
}

// Abort force-terminates the run from any non-terminal status.
func Abort(rs *contractx.RunState, now time.Time) error {
	if rs == nil {
		return ErrNilRunState
	}
	if rs.Status.Terminal() {
		return fmt.Errorf("%w: run %s is already %s", ErrInvalidTransition, rs.RunID, rs.Status)
	}
	rs.Status = contractx.StatusAborted
	rs.Approval = nil
	rs.UpdatedAt = now.UTC()
	return nil
}

// Validate checks cross-field invariants, used when reloading a checkpoint.
func Validate(rs *contractx.RunState) error {
	if rs == nil {
		return ErrNilRunState
	}
	if rs.RunID == "" {
		return ErrEmptyRunID
	}
	switch rs.Status {
	case contractx.StatusAwaitingApproval:
		if rs.Plan == nil {
			return fmt.Errorf("suspended run %s has no plan", rs.RunID)
		}
		if rs.Approval == nil {
			return fmt.Errorf("suspended run %s has no approval request", rs.RunID)
		}
	case contractx.StatusExecuting, contractx.StatusResponding:
		if rs.Plan == nil {
			return fmt.Errorf("run %s reached %s without a plan", rs.RunID, rs.Status)
		}
	}
	return nil
}
