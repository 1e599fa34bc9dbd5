// Package orchestrator drives one question through plan, gate, execute and
// respond. Routing is an explicit switch over RunState.Status; there is no
// graph engine underneath.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pitchaya-w/coachflow/agent/checkpoint"
	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	"github.com/pitchaya-w/coachflow/agent/responder"
	"github.com/pitchaya-w/coachflow/agent/state"
	toolx "github.com/pitchaya-w/coachflow/agent/tool"
)

// Config carries the orchestrator's tunables, loaded from the environment.
type Config struct {
	// ApprovalThreshold gates plans: confidence below it suspends the run.
	ApprovalThreshold float64 `envconfig:"APPROVAL_THRESHOLD" split_words:"true" default:"0.8"`
	// MemoryWindow is how many prior turns the planner and responder see.
	MemoryWindow int `envconfig:"MEMORY_WINDOW" split_words:"true" default:"10"`
	// ToolTimeout bounds each individual tool invocation.
	ToolTimeout time.Duration `envconfig:"TOOL_TIMEOUT" split_words:"true" default:"15s"`
	// ToolPoolSize bounds concurrent tool invocations within one run.
	ToolPoolSize int `envconfig:"TOOL_POOL_SIZE" split_words:"true" default:"4"`
}

// Notifier is told when a run suspends for approval, so an operator channel
// (chat, queue, webhook) can surface the request. Failures are logged, never
// fatal: the checkpoint is already durable by then.
type Notifier interface {
	NotifyApprovalRequested(ctx context.Context, req contractx.ApprovalRequest) error
}

type Orchestrator struct {
	planner     contractx.Planner
	responder   contractx.Responder
	registry    *toolx.Registry
	memory      contractx.MemoryStore
	checkpoints checkpoint.Store
	notifier    Notifier
	cfg         Config

	mu       sync.Mutex
	inflight map[string]struct{}
	resolved map[string]struct{}

	now   func() time.Time
	newID func() string
}

func New(
	planner contractx.Planner,
	resp contractx.Responder,
	registry *toolx.Registry,
	memory contractx.MemoryStore,
	checkpoints checkpoint.Store,
	notifier Notifier,
	cfg Config,
) (*Orchestrator, error) {
	if planner == nil || resp == nil {
		return nil, errors.New("planner and responder are required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if memory == nil || checkpoints == nil {
		return nil, errors.New("memory and checkpoint stores are required")
	}
	if cfg.ApprovalThreshold < 0 || cfg.ApprovalThreshold > 1 {
		return nil, fmt.Errorf("approval threshold %v out of range", cfg.ApprovalThreshold)
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = 10
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 15 * time.Second
	}
	if cfg.ToolPoolSize <= 0 {
		cfg.ToolPoolSize = 4
	}
	return &Orchestrator{
		planner:     planner,
		responder:   resp,
		registry:    registry,
		memory:      memory,
		checkpoints: checkpoints,
		notifier:    notifier,
		cfg:         cfg,
		inflight:    make(map[string]struct{}),
		resolved:    make(map[string]struct{}),
		now:         time.Now,
		newID:       func() string { return "run_" + uuid.NewString() },
	}, nil
}

// Start runs a new turn until it completes, suspends for approval, or fails.
func (o *Orchestrator) Start(ctx context.Context, userID, sessionID, question string) (contractx.RunOutcome, error) {
	if userID == "" || sessionID == "" {
		return contractx.RunOutcome{}, fmt.Errorf("%w: user_id and session_id are required", contractx.ErrValidation)
	}
	if question == "" {
		return contractx.RunOutcome{}, fmt.Errorf("%w: question is empty", contractx.ErrValidation)
	}

	runID := o.newID()
	turn := contractx.Turn{
		TurnID:    "turn_" + uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Question:  question,
		CreatedAt: o.now().UTC(),
	}
	rs, err := state.NewRunState(runID, turn, o.now())
	if err != nil {
		return contractx.RunOutcome{}, err
	}

	log.Info().
		Str("run_id", runID).
		Str("user_id", userID).
		Str("session_id", sessionID).
		Msg("run started")

	return o.drive(ctx, rs)
}

// Resume resolves a suspended run with a human decision. Each run resumes at
// most once; a second attempt gets ErrRunAlreadyResolved, a run this process
// has never suspended (or whose checkpoint is gone) gets ErrUnknownRun.
func (o *Orchestrator) Resume(ctx context.Context, runID string, decision contractx.ApprovalDecision) (contractx.RunOutcome, error) {
	if runID == "" {
		return contractx.RunOutcome{}, fmt.Errorf("%w: run id is empty", contractx.ErrValidation)
	}
	if !decision.Action.Valid() {
		return contractx.RunOutcome{}, fmt.Errorf("%w: decision action %q", contractx.ErrValidation, decision.Action)
	}

	if err := o.claim(runID); err != nil {
		return contractx.RunOutcome{}, err
	}
	defer o.release(runID)

	rs, err := o.checkpoints.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return contractx.RunOutcome{}, fmt.Errorf("%w: %s", contractx.ErrUnknownRun, runID)
		}
		return contractx.RunOutcome{}, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	if err := state.Validate(rs); err != nil {
		return contractx.RunOutcome{}, fmt.Errorf("checkpoint %s is corrupt: %w", runID, err)
	}

	if decision.Action == contractx.DecisionModify && decision.Feedback != "" {
		rs.Turn.Feedback = decision.Feedback
	}
	if err := state.ApplyDecision(rs, decision, o.now()); err != nil {
		return contractx.RunOutcome{}, err
	}

	log.Info().
		Str("run_id", runID).
		Str("decision", string(decision.Action)).
		Msg("run resumed")

	outcome, err := o.drive(ctx, rs)
	if err == nil && outcome.Kind != contractx.OutcomePendingApproval {
		o.markResolved(runID)
	}
	return outcome, err
}

// Cancel aborts a suspended run and discards its checkpoint.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is empty", contractx.ErrValidation)
	}
	if err := o.claim(runID); err != nil {
		return err
	}
	defer o.release(runID)

	rs, err := o.checkpoints.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("%w: %s", contractx.ErrUnknownRun, runID)
		}
		return fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	if err := state.Abort(rs, o.now()); err != nil {
		return err
	}
	if err := o.checkpoints.Delete(ctx, runID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", runID, err)
	}
	o.markResolved(runID)
	log.Info().Str("run_id", runID).Msg("run cancelled")
	return nil
}

// PendingApproval returns the outstanding request of a suspended run.
func (o *Orchestrator) PendingApproval(ctx context.Context, runID string) (contractx.ApprovalRequest, error) {
	rs, err := o.checkpoints.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return contractx.ApprovalRequest{}, fmt.Errorf("%w: %s", contractx.ErrUnknownRun, runID)
		}
		return contractx.ApprovalRequest{}, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	if rs.Status != contractx.StatusAwaitingApproval || rs.Approval == nil {
		return contractx.ApprovalRequest{}, fmt.Errorf("%w: %s", contractx.ErrUnknownRun, runID)
	}
	return *rs.Approval, nil
}

// drive advances the run until it reaches a terminal status or suspends.
func (o *Orchestrator) drive(ctx context.Context, rs *contractx.RunState) (contractx.RunOutcome, error) {
	for {
		switch rs.Status {
		case contractx.StatusPlanning:
			if err := o.plan(ctx, rs); err != nil {
				return o.abort(ctx, rs, err)
			}

			if o.requiresApproval(*rs.Plan) {
				return o.suspend(ctx, rs)
			}
			next := contractx.StatusResponding
			if !rs.Plan.Empty() {
				next = contractx.StatusExecuting
			}
			if err := state.Transition(rs, next, o.now()); err != nil {
				return o.abort(ctx, rs, err)
			}

		case contractx.StatusExecuting:
			rs.ToolResults = o.executePlan(ctx, rs.RunID, *rs.Plan)
			if err := state.Transition(rs, contractx.StatusResponding, o.now()); err != nil {
				return o.abort(ctx, rs, err)
			}

		case contractx.StatusResponding:
			answer, err := o.respond(ctx, rs)
			if err != nil {
				return o.abort(ctx, rs, err)
			}
			if err := state.Complete(rs, answer, o.now()); err != nil {
				return o.abort(ctx, rs, err)
			}

		case contractx.StatusCompleted:
			return o.finish(ctx, rs)

		default:
			return o.abort(ctx, rs, fmt.Errorf("run %s in unexpected status %s", rs.RunID, rs.Status))
		}
	}
}

func (o *Orchestrator) plan(ctx context.Context, rs *contractx.RunState) error {
	history, err := o.memory.Recent(ctx, rs.Turn.Key(), o.cfg.MemoryWindow)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	plan, err := o.planner.Plan(ctx, contractx.PlanRequest{
		Question: rs.Turn.Question,
		History:  history,
	})
	if err != nil {
		return err
	}
	return state.AttachPlan(rs, plan, o.now())
}

// requiresApproval is the gate predicate. Empty plans never gate, regardless
// of confidence.
func (o *Orchestrator) requiresApproval(plan contractx.Plan) bool {
	if plan.Empty() {
		return false
	}
	if plan.Confidence < o.cfg.ApprovalThreshold {
		return true
	}
	for _, inv := range plan.Invocations {
		if o.registry.Sensitive(inv.Tool) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) suspend(ctx context.Context, rs *contractx.RunState) (contractx.RunOutcome, error) {
	req, err := state.Suspend(rs, o.now())
	if err != nil {
		return o.abort(ctx, rs, err)
	}
	// Checkpoint first: the run only advertises as pending once resuming it
	// is actually possible.
	if err := o.checkpoints.Put(ctx, rs.RunID, rs); err != nil {
		return o.abort(ctx, rs, fmt.Errorf("persist checkpoint: %w", err))
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyApprovalRequested(ctx, req); err != nil {
			log.Warn().Err(err).Str("run_id", rs.RunID).Msg("approval notification failed")
		}
	}
	log.Info().
		Str("run_id", rs.RunID).
		Float64("confidence", req.Confidence).
		Int("invocations", len(req.Plan.Invocations)).
		Msg("run suspended for approval")
	return contractx.RunOutcome{
		Kind:     contractx.OutcomePendingApproval,
		RunID:    rs.RunID,
		Approval: &req,
	}, nil
}

func (o *Orchestrator) respond(ctx context.Context, rs *contractx.RunState) (string, error) {
	history, err := o.memory.Recent(ctx, rs.Turn.Key(), o.cfg.MemoryWindow)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	req := contractx.RespondRequest{
		Question: rs.Turn.Question,
		History:  history,
		Results:  rs.ToolResults,
	}
	if rs.Plan != nil {
		req.Plan = *rs.Plan
	}
	if rs.Decision != nil && rs.Decision.Action != contractx.DecisionApprove {
		req.Rejected = true
		req.Feedback = rs.Decision.Feedback
	}
	answer, err := o.responder.Respond(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrResponderFailure, err)
	}
	return answer, nil
}

// finish commits the completed run: turn into memory, checkpoint gone.
func (o *Orchestrator) finish(ctx context.Context, rs *contractx.RunState) (contractx.RunOutcome, error) {
	if err := o.memory.Append(ctx, rs.Turn.Key(), rs.Turn); err != nil {
		// The answer exists; losing the memory write degrades future context
		// but must not fail the turn.
		log.Error().Err(err).Str("run_id", rs.RunID).Msg("memory append failed")
	}
	if err := o.checkpoints.Delete(ctx, rs.RunID); err != nil {
		log.Error().Err(err).Str("run_id", rs.RunID).Msg("checkpoint delete failed")
	}
	log.Info().Str("run_id", rs.RunID).Msg("run completed")
	return contractx.RunOutcome{
		Kind:   contractx.OutcomeCompleted,
		RunID:  rs.RunID,
		Answer: rs.Answer,
	}, nil
}

// abort terminates the run, discards any checkpoint, and reports a failed
// outcome. Provider outages are marked retryable.
func (o *Orchestrator) abort(ctx context.Context, rs *contractx.RunState, cause error) (contractx.RunOutcome, error) {
	if !rs.Status.Terminal() {
		if err := state.Abort(rs, o.now()); err != nil {
			log.Error().Err(err).Str("run_id", rs.RunID).Msg("abort transition failed")
		}
	}
	if err := o.checkpoints.Delete(ctx, rs.RunID); err != nil {
		log.Error().Err(err).Str("run_id", rs.RunID).Msg("checkpoint delete failed")
	}
	log.Error().Err(cause).Str("run_id", rs.RunID).Msg("run aborted")
	return contractx.RunOutcome{
		Kind:      contractx.OutcomeFailed,
		RunID:     rs.RunID,
		Answer:    responder.Apology,
		Reason:    cause.Error(),
		Retryable: errors.Is(cause, contractx.ErrProviderUnavailable) || errors.Is(cause, contractx.ErrProviderTimeout),
	}, cause
}

// claim takes the per-run resume slot. It fails when the run was already
// resolved or another resume is in flight.
func (o *Orchestrator) claim(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, done := o.resolved[runID]; done {
		return fmt.Errorf("%w: %s", contractx.ErrRunAlreadyResolved, runID)
	}
	if _, busy := o.inflight[runID]; busy {
		return fmt.Errorf("%w: %s", contractx.ErrRunAlreadyResolved, runID)
	}
	o.inflight[runID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, runID)
}

func (o *Orchestrator) markResolved(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved[runID] = struct{}{}
}
