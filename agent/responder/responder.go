// Package responder synthesizes the final natural-language answer from the
// run's accumulated context. It always produces an answer: provider failures
// and empty completions degrade to a canned apology rather than surfacing a
// raw error to the end user.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

const systemPrompt = `You are a supportive coaching assistant helping students prepare for law-school admission exams. Answer the student's question using the tool results and conversation context below. Be concise, encouraging and concrete. If a tool failed, work with what you have and do not mention internal errors.`

// Apology is the degraded answer used when synthesis fails entirely.
const Apology = "Sorry, I ran into a problem putting an answer together. Please try asking again."

type Responder struct {
	model contractx.ChatModel
}

func New(model contractx.ChatModel) (*Responder, error) {
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	return &Responder{model: model}, nil
}

func (r *Responder) Respond(ctx context.Context, req contractx.RespondRequest) (string, error) {
	user := renderContext(req)

	answer, err := r.model.Complete(ctx, systemPrompt, user)
	if err != nil {
		log.Warn().Err(err).Msg("responder completion failed, degrading to apology")
		return Apology, nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		log.Warn().Msg("responder returned empty completion, degrading to apology")
		return Apology, nil
	}
	return answer, nil
}

// renderContext flattens the run into a single prompt: history, the plan's
// rationale, each tool outcome, and the operator's verdict when the plan was
// rejected or modified.
func renderContext(req contractx.RespondRequest) string {
	var b strings.Builder

	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "student: %s\n", turn.Question)
			if turn.Answer != "" {
				fmt.Fprintf(&b, "assistant: %s\n", turn.Answer)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Student's question: %s\n", req.Question)

	if req.Plan.Reasoning != "" {
		fmt.Fprintf(&b, "\nPlanning notes: %s\n", req.Plan.Reasoning)
	}

	if req.Rejected {
		b.WriteString("\nA human reviewer declined to run the proposed tools.")
		if req.Feedback != "" {
			fmt.Fprintf(&b, " Reviewer feedback: %s", req.Feedback)
		}
		b.WriteString("\nAnswer from general knowledge, honoring the feedback.\n")
	}

	if len(req.Results) > 0 {
		b.WriteString("\nTool results:\n")
		for _, res := range req.Results {
			if res.Failed() {
				fmt.Fprintf(&b, "- %s: unavailable (%s)\n", res.Tool, res.FailKind)
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", res.Tool, renderResult(res.Result))
		}
	}

	return b.String()
}

func renderResult(v any) string {
	if v == nil {
		return "(no data)"
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
