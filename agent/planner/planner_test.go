package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	progressx "github.com/pitchaya-w/coachflow/agent/progress"
	toolx "github.com/pitchaya-w/coachflow/agent/tool"
)

type fakeModel struct {
	reply string
	err   error
	// last prompt pair, for assertions
	system string
	user   string
}

func (m *fakeModel) Complete(ctx context.Context, system, user string) (string, error) {
	m.system = system
	m.user = user
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func testRegistry(t *testing.T) *toolx.Registry {
	t.Helper()
	retriever := toolx.NewKeywordRetriever(nil)
	store := progressx.NewInMemoryStore()
	r, err := toolx.NewRegistry(
		toolx.NewSearchTool(retriever),
		toolx.NewPracticeQuestionTool(retriever, store),
		toolx.NewLearningProgressTool(store),
		toolx.NewRecordAnswerTool(store),
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestPlanParsesModelOutput(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: `Here is my plan:
{"needs_tools": true, "confidence": 0.9, "reasoning": "needs material",
 "tools_to_use": [{"tool_name": "search_documents", "parameters": {"query": "precedent"}, "reason": "look it up"}]}`}
	p, err := New(model, testRegistry(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "what is precedent?"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Invocations) != 1 {
		t.Fatalf("invocations = %+v", plan.Invocations)
	}
	inv := plan.Invocations[0]
	if inv.Tool != "search_documents" || inv.Args["query"] != "precedent" {
		t.Fatalf("invocation = %+v", inv)
	}
	if plan.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", plan.Confidence)
	}
}

func TestPlanDropsUnknownTools(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: `{"needs_tools": true, "confidence": 0.7, "reasoning": "",
 "tools_to_use": [
   {"tool_name": "delete_everything", "parameters": {}},
   {"tool_name": "get_learning_progress", "parameters": {"user_id": "u1"}}
 ]}`}
	p, _ := New(model, testRegistry(t))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "how am I doing?"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Invocations) != 1 || plan.Invocations[0].Tool != "get_learning_progress" {
		t.Fatalf("invocations = %+v", plan.Invocations)
	}
}

func TestPlanClampsConfidence(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: `{"needs_tools": true, "confidence": 3.5,
 "tools_to_use": [{"tool_name": "search_documents", "parameters": {"query": "x"}}]}`}
	p, _ := New(model, testRegistry(t))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "q"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want clamped to 1.0", plan.Confidence)
	}
}

func TestPlanEmptyDefaultsConfidenceHigh(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: `{"needs_tools": false, "reasoning": "small talk", "tools_to_use": []}`}
	p, _ := New(model, testRegistry(t))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "hello!"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.Empty() {
		t.Fatalf("plan = %+v, want empty", plan)
	}
	if plan.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", plan.Confidence)
	}
}

func TestPlanFallbackOnGarbageOutput(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "I think you should use some tools maybe"}
	p, _ := New(model, testRegistry(t))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "give me a practice question"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Invocations) != 1 || plan.Invocations[0].Tool != "get_practice_question" {
		t.Fatalf("fallback invocations = %+v", plan.Invocations)
	}
	if plan.Confidence >= 0.8 {
		t.Fatalf("fallback confidence = %v, should stay below the gate", plan.Confidence)
	}
}

func TestPlanFallbackGeneralQuestion(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "not json at all"}
	p, _ := New(model, testRegistry(t))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "tell me about your day"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.Empty() || plan.Confidence != 1.0 {
		t.Fatalf("plan = %+v, want empty high-confidence", plan)
	}
}

func TestPlanProviderErrorWrapsPlanningFailure(t *testing.T) {
	t.Parallel()

	model := &fakeModel{err: contractx.ErrProviderUnavailable}
	p, _ := New(model, testRegistry(t))

	_, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "q"})
	if !errors.Is(err, contractx.ErrPlanningFailure) {
		t.Fatalf("err = %v, want ErrPlanningFailure", err)
	}
}

func TestPlanRejectsEmptyQuestion(t *testing.T) {
	t.Parallel()

	p, _ := New(&fakeModel{}, testRegistry(t))
	_, err := p.Plan(context.Background(), contractx.PlanRequest{Question: "   "})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPlanIncludesHistoryInPrompt(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: `{"needs_tools": false, "tools_to_use": []}`}
	p, _ := New(model, testRegistry(t))

	_, err := p.Plan(context.Background(), contractx.PlanRequest{
		Question: "and what about torts?",
		History: []contractx.Turn{
			{Question: "what is contract law?", Answer: "an agreement enforceable by law"},
		},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, want := range []string{"what is contract law?", "and what about torts?"} {
		if !strings.Contains(model.user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, model.user)
		}
	}
	if !strings.Contains(model.system, "search_documents") {
		t.Fatal("system prompt missing tool catalog")
	}
}
