package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	toolx "github.com/pitchaya-w/coachflow/agent/tool"
)

func TestExecutePlanPreservesOrder(t *testing.T) {
	t.Parallel()

	tools := []toolx.Tool{
		&stubTool{name: "first", invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return "one", nil
		}},
		&stubTool{name: "second", invoke: func(ctx context.Context, args map[string]any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "two", nil
		}},
	}
	f := newFixture(t, tools...)

	results := f.orch.executePlan(context.Background(), "run_x", contractx.Plan{
		Invocations: []contractx.ToolInvocation{{Tool: "second"}, {Tool: "first"}},
	})
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Tool != "second" || results[0].Result != "two" {
		t.Fatalf("results[0] = %+v", results[0])
	}
	if results[1].Tool != "first" || results[1].Result != "one" {
		t.Fatalf("results[1] = %+v", results[1])
	}
}

func TestExecutePlanTimeoutDoesNotKillSiblings(t *testing.T) {
	t.Parallel()

	tools := []toolx.Tool{
		&stubTool{name: "slow", invoke: func(ctx context.Context, args map[string]any) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}},
		&stubTool{name: "fast"},
	}
	f := newFixture(t, tools...)
	f.orch.cfg.ToolTimeout = 50 * time.Millisecond

	results := f.orch.executePlan(context.Background(), "run_x", contractx.Plan{
		Invocations: []contractx.ToolInvocation{{Tool: "slow"}, {Tool: "fast"}},
	})
	if results[0].FailKind != contractx.FailureTimeout {
		t.Fatalf("slow fail kind = %s, want timeout", results[0].FailKind)
	}
	if results[1].Failed() || results[1].Result != "ok" {
		t.Fatalf("fast result = %+v", results[1])
	}
}

func TestExecuteInvocationFailureKinds(t *testing.T) {
	t.Parallel()

	tools := []toolx.Tool{
		&stubTool{
			name:   "strictly",
			schema: toolx.Schema{"query": {Type: toolx.TypeString, Required: true}},
		},
		&stubTool{name: "broken", invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		}},
	}
	f := newFixture(t, tools...)

	unknown := f.orch.executeInvocation(context.Background(), "run_x", contractx.ToolInvocation{Tool: "nope"})
	if unknown.FailKind != contractx.FailureUnknownTool {
		t.Fatalf("fail kind = %s, want unknown_tool", unknown.FailKind)
	}

	badArgs := f.orch.executeInvocation(context.Background(), "run_x", contractx.ToolInvocation{
		Tool:   "strictly",
		Args:   map[string]any{},
		Strict: true,
	})
	if badArgs.FailKind != contractx.FailureBadArgs {
		t.Fatalf("fail kind = %s, want bad_args", badArgs.FailKind)
	}

	execFail := f.orch.executeInvocation(context.Background(), "run_x", contractx.ToolInvocation{Tool: "broken"})
	if execFail.FailKind != contractx.FailureExecution {
		t.Fatalf("fail kind = %s, want execution", execFail.FailKind)
	}
	if execFail.Error != "backend unavailable" {
		t.Fatalf("error = %q", execFail.Error)
	}
}

func TestExecuteInvocationLooseArgsSkipValidation(t *testing.T) {
	t.Parallel()

	tools := []toolx.Tool{
		&stubTool{
			name:   "strictly",
			schema: toolx.Schema{"query": {Type: toolx.TypeString, Required: true}},
		},
	}
	f := newFixture(t, tools...)

	// Without Strict the schema is advisory and the tool decides.
	res := f.orch.executeInvocation(context.Background(), "run_x", contractx.ToolInvocation{
		Tool: "strictly",
		Args: map[string]any{},
	})
	if res.Failed() {
		t.Fatalf("result = %+v, want success", res)
	}
}
