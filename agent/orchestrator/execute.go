package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	toolx "github.com/pitchaya-w/coachflow/agent/tool"
)

// executePlan fans the plan's invocations out over a bounded pool and returns
// one ToolResult per invocation, in plan order. Failures are recorded per
// invocation; a failing tool never takes its siblings down.
func (o *Orchestrator) executePlan(ctx context.Context, runID string, plan contractx.Plan) []contractx.ToolResult {
	results := make([]contractx.ToolResult, len(plan.Invocations))
	sem := make(chan struct{}, o.cfg.ToolPoolSize)
	var wg sync.WaitGroup

	for i, inv := range plan.Invocations {
		wg.Add(1)
		go func(i int, inv contractx.ToolInvocation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.executeInvocation(ctx, runID, inv)
		}(i, inv)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) executeInvocation(ctx context.Context, runID string, inv contractx.ToolInvocation) contractx.ToolResult {
	res := contractx.ToolResult{Tool: inv.Tool}

	t, ok := o.registry.Lookup(inv.Tool)
	if !ok {
		res.FailKind = contractx.FailureUnknownTool
		res.Error = fmt.Sprintf("%v: %s", contractx.ErrUnknownTool, inv.Tool)
		log.Warn().Str("run_id", runID).Str("tool", inv.Tool).Msg("unknown tool in plan")
		return res
	}

	if inv.Strict {
		if err := toolx.ValidateArgs(t.Schema(), inv.Args); err != nil {
			res.FailKind = contractx.FailureBadArgs
			res.Error = err.Error()
			return res
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	started := time.Now()
	go func() {
		value, err := t.Invoke(ctx, inv.Args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		res.FailKind = contractx.FailureTimeout
		res.Error = contractx.ErrToolTimeout.Error()
		log.Warn().
			Str("run_id", runID).
			Str("tool", inv.Tool).
			Dur("elapsed", time.Since(started)).
			Msg("tool invocation timed out")
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				res.FailKind = contractx.FailureTimeout
				res.Error = contractx.ErrToolTimeout.Error()
			} else {
				res.FailKind = contractx.FailureExecution
				res.Error = out.err.Error()
			}
			log.Warn().
				Err(out.err).
				Str("run_id", runID).
				Str("tool", inv.Tool).
				Msg("tool invocation failed")
			return res
		}
		res.Result = out.value
		log.Debug().
			Str("run_id", runID).
			Str("tool", inv.Tool).
			Dur("elapsed", time.Since(started)).
			Msg("tool invocation succeeded")
	}
	return res
}
