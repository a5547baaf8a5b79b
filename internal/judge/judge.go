// Package judge implements the Relevance Judge (spec §4.3): an LLM call
// that scores a candidate answer's relevance to a query.
package judge

import (
	"context"
	"fmt"

	"github.com/tangerg-labs/deepresearch/internal/jsonx"
	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/prompts"
	"github.com/tangerg-labs/deepresearch/internal/state"
)

// Judge scores (query, candidate_answer) pairs.
type Judge struct {
	chat  llm.ChatModel
	model string
}

func New(chat llm.ChatModel, model string) *Judge {
	return &Judge{chat: chat, model: model}
}

type judgmentPayload struct {
	Score     string `json:"score"`
	Rationale string `json:"rationale"`
}

// Score asks the LLM whether candidateAnswer adequately addresses query.
// A failed call or malformed/empty LLM output defaults to
// RelevanceJudgment{Score:"no"} (spec §4.3 tie-break) with a nil error: the
// judge is advisory, not fatal. Only a prompt-rendering failure returns an
// error (still with a "no" judgment).
func (j *Judge) Score(ctx context.Context, query, candidateAnswer string) (state.RelevanceJudgment, error) {
	prompt, err := prompts.Render(prompts.JudgeRelevance, map[string]any{
		"Query":           query,
		"CandidateAnswer": candidateAnswer,
	})
	if err != nil {
		return state.RelevanceJudgment{Score: "no"}, fmt.Errorf("judge: failed to render prompt: %w", err)
	}

	raw, err := j.chat.Complete(ctx, llm.ChatRequest{
		Model:    j.model,
		Messages: []llm.ChatMessage{llm.User(prompt)},
	})
	if err != nil {
		// Not fatal: a failed judge call falls through to "no", same as
		// ambiguous output, so the caller still gets a usable decision.
		return state.RelevanceJudgment{Score: "no", Rationale: "judge call failed"}, nil
	}

	var payload judgmentPayload
	if err := jsonx.Unmarshal(raw, &payload); err != nil {
		return state.RelevanceJudgment{Score: "no", Rationale: "unparseable judge response"}, nil
	}

	return state.RelevanceJudgment{Score: payload.Score, Rationale: payload.Rationale}, nil
}
