// Package planner turns a user utterance plus conversation history into a
// Plan. The model's answer is untrusted: tool names are checked against the
// registry, confidence is clamped, and unparseable output falls back to
// keyword rules instead of failing the run.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	toolx "github.com/pitchaya-w/coachflow/agent/tool"
)

const systemTemplate = `You are the planning step of a coaching assistant with access to these tools:

%s

Analyze the user's question and decide whether any tools are needed. Reply with JSON only, in exactly this shape:
{
  "needs_tools": true,
  "confidence": 0.0,
  "reasoning": "why these tools (or why none)",
  "tools_to_use": [
    {"tool_name": "exact_tool_name", "parameters": {"param": "value"}, "reason": "why this tool"}
  ]
}

Use an empty tools_to_use array and needs_tools=false when no tool helps. confidence is your certainty in the plan, between 0 and 1.`

type llmPlan struct {
	NeedsTools bool    `json:"needs_tools"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Tools      []struct {
		ToolName   string         `json:"tool_name"`
		Parameters map[string]any `json:"parameters"`
		Reason     string         `json:"reason"`
	} `json:"tools_to_use"`
}

type Planner struct {
	model    contractx.ChatModel
	registry *toolx.Registry
}

func New(model contractx.ChatModel, registry *toolx.Registry) (*Planner, error) {
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	return &Planner{model: model, registry: registry}, nil
}

func (p *Planner) Plan(ctx context.Context, req contractx.PlanRequest) (contractx.Plan, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return contractx.Plan{}, fmt.Errorf("%w: question is empty", contractx.ErrValidation)
	}

	system := fmt.Sprintf(systemTemplate, p.registry.Describe())
	user := renderUserMessage(question, req.History)

	raw, err := p.model.Complete(ctx, system, user)
	if err != nil {
		// Provider failures abort the run; the orchestrator turns this
		// into a user-visible apology, not a crash.
		return contractx.Plan{}, fmt.Errorf("%w: %v", contractx.ErrPlanningFailure, err)
	}

	out, ok := parseLLMPlan(raw)
	if !ok {
		log.Warn().Str("raw", truncate(raw, 200)).Msg("planner output not parseable, using fallback rules")
		return p.fallbackPlan(question), nil
	}
	return p.toPlan(out), nil
}

func (p *Planner) toPlan(out llmPlan) contractx.Plan {
	plan := contractx.Plan{
		Confidence: clamp(out.Confidence),
		Reasoning:  strings.TrimSpace(out.Reasoning),
	}
	if !out.NeedsTools {
		if plan.Confidence == 0 {
			plan.Confidence = 1.0
		}
		return plan
	}
	for _, t := range out.Tools {
		name := strings.TrimSpace(t.ToolName)
		if name == "" {
			continue
		}
		if !p.registry.Has(name) {
			// Unknown names are dropped, not fatal: planner output is
			// untrusted input.
			log.Warn().Str("tool", name).Msg("planner requested unknown tool, dropping")
			continue
		}
		args := t.Parameters
		if args == nil {
			args = map[string]any{}
		}
		plan.Invocations = append(plan.Invocations, contractx.ToolInvocation{
			Tool:      name,
			Args:      args,
			Rationale: strings.TrimSpace(t.Reason),
		})
	}
	if plan.Empty() && plan.Confidence == 0 {
		plan.Confidence = 1.0
	}
	return plan
}

// fallbackPlan applies keyword rules when the model's output cannot be
// parsed. Confidence stays low so the gate gets a say.
func (p *Planner) fallbackPlan(question string) contractx.Plan {
	lower := strings.ToLower(question)
	pick := func(name string, args map[string]any, reason string) contractx.Plan {
		if !p.registry.Has(name) {
			return contractx.Plan{Confidence: 1.0, Reasoning: "fallback: no matching tool registered"}
		}
		return contractx.Plan{
			Invocations: []contractx.ToolInvocation{{Tool: name, Args: args, Rationale: reason}},
			Confidence:  0.5,
			Reasoning:   "fallback: " + reason,
		}
	}
	switch {
	case containsAny(lower, "practice", "question", "quiz"):
		return pick("get_practice_question", map[string]any{}, "detected practice request")
	case containsAny(lower, "progress", "performance", "score"):
		return pick("get_learning_progress", map[string]any{}, "detected progress request")
	case containsAny(lower, "grammar", "vocabulary", "comprehension", "legal"):
		return pick("search_documents", map[string]any{"query": question}, "detected study-content request")
	default:
		return contractx.Plan{Confidence: 1.0, Reasoning: "fallback: general question, no tools needed"}
	}
}

func parseLLMPlan(raw string) (llmPlan, bool) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return llmPlan{}, false
	}
	var out llmPlan
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return llmPlan{}, false
	}
	return out, true
}

func renderUserMessage(question string, history []contractx.Turn) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "user: %s\n", turn.Question)
		if turn.Answer != "" {
			fmt.Fprintf(&b, "assistant: %s\n", turn.Answer)
		}
		if turn.Feedback != "" {
			fmt.Fprintf(&b, "operator feedback: %s\n", turn.Feedback)
		}
	}
	b.WriteString("\nNew question: ")
	b.WriteString(question)
	return b.String()
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
