package responder

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

type fakeModel struct {
	reply  string
	err    error
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

func TestRespondReturnsCompletion(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "  A precedent is a prior decision courts follow.  "}
	r, err := New(model)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	answer, err := r.Respond(context.Background(), contractx.RespondRequest{Question: "what is precedent?"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if answer != "A precedent is a prior decision courts follow." {
		t.Fatalf("answer = %q", answer)
	}
}

func TestRespondDegradesOnProviderError(t *testing.T) {
	t.Parallel()

	model := &fakeModel{err: errors.New("upstream 503")}
	r, _ := New(model)

	answer, err := r.Respond(context.Background(), contractx.RespondRequest{Question: "q"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if answer != Apology {
		t.Fatalf("answer = %q, want apology", answer)
	}
}

func TestRespondDegradesOnEmptyCompletion(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "   "}
	r, _ := New(model)

	answer, err := r.Respond(context.Background(), contractx.RespondRequest{Question: "q"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if answer != Apology {
		t.Fatalf("answer = %q, want apology", answer)
	}
}

func TestRespondRendersToolResults(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "done"}
	r, _ := New(model)

	_, err := r.Respond(context.Background(), contractx.RespondRequest{
		Question: "quiz me",
		Results: []contractx.ToolResult{
			{Tool: "get_practice_question", Result: map[string]any{"question": "define precedent"}},
			{Tool: "get_learning_progress", FailKind: contractx.FailureTimeout, Error: "tool timed out"},
		},
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(model.user, "define precedent") {
		t.Fatalf("prompt missing successful result:\n%s", model.user)
	}
	if !strings.Contains(model.user, "get_learning_progress: unavailable (timeout)") {
		t.Fatalf("prompt missing failure note:\n%s", model.user)
	}
	// The raw error text stays internal.
	if strings.Contains(model.user, "tool timed out") {
		t.Fatalf("prompt leaks raw error:\n%s", model.user)
	}
}

func TestRespondRendersRejectionFeedback(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "done"}
	r, _ := New(model)

	_, err := r.Respond(context.Background(), contractx.RespondRequest{
		Question: "record my answer",
		Rejected: true,
		Feedback: "do not store anything yet",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(model.user, "declined to run the proposed tools") {
		t.Fatalf("prompt missing rejection note:\n%s", model.user)
	}
	if !strings.Contains(model.user, "do not store anything yet") {
		t.Fatalf("prompt missing feedback:\n%s", model.user)
	}
}

func TestRespondRendersHistory(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "done"}
	r, _ := New(model)

	_, err := r.Respond(context.Background(), contractx.RespondRequest{
		Question: "and torts?",
		History: []contractx.Turn{
			{Question: "what is contract law?", Answer: "an enforceable agreement"},
		},
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(model.user, "an enforceable agreement") {
		t.Fatalf("prompt missing history:\n%s", model.user)
	}
}
