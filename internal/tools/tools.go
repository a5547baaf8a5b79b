// Package tools implements the Tool Layer (spec §4.1): a closed set of
// async functions shared by the Research Graph and the UDF Strategy Engine.
// Every tool takes a Writer callback for progress logging, matching the
// spec's "all tools take a write(entry) callback" contract; the graph
// runtime and the UDF executor each supply their own writer.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tangerg-labs/deepresearch/internal/judge"
	"github.com/tangerg-labs/deepresearch/internal/jsonx"
	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/prompts"
	"github.com/tangerg-labs/deepresearch/internal/retrieval"
	"github.com/tangerg-labs/deepresearch/internal/state"
	"github.com/tangerg-labs/deepresearch/internal/websearch"
)

// Writer appends a human-readable progress line to the enclosing state's logs.
type Writer func(entry string)

// ErrQueryGenerationFailed is fatal for generate_query (spec §7).
var ErrQueryGenerationFailed = fmt.Errorf("tools: query generation failed")

// ErrLLMEmptyResponse is raised when an LLM call returns an empty
// completion even after retries (spec §7).
var ErrLLMEmptyResponse = fmt.Errorf("tools: llm returned empty response")

// ErrLLMMalformedJSON is raised when an LLM call expected to emit JSON
// never produces parseable output across its retries (spec §7).
var ErrLLMMalformedJSON = fmt.Errorf("tools: llm returned malformed json")

// Config bundles tunables the Tool Layer needs (spec §6 limits).
type Config struct {
	ReasoningModel   string
	InstructModel    string
	EmbeddingModel   string
	WebTopK          int
	RAGTopK          int
	SummaryCharLimit int
}

// Layer wires concrete backends behind the Tool Layer's function set.
type Layer struct {
	chat      llm.ChatModel
	retriever *retrieval.Adapter
	search    *websearch.Client
	judge     *judge.Judge
	cfg       Config
}

// New builds a Tool Layer over the given backends. search may be nil when
// no web-search endpoint is configured; search_web then always returns an
// empty slice, matching the "not fatal, log, proceed" policy of §4.1.
func New(chat llm.ChatModel, retriever *retrieval.Adapter, search *websearch.Client, cfg Config) *Layer {
	return &Layer{
		chat:      chat,
		retriever: retriever,
		search:    search,
		judge:     judge.New(chat, cfg.ReasoningModel),
		cfg:       cfg,
	}
}

// completeWithRetry retries an LLM call up to maxRetries times on an empty
// response, per spec §4.1/§7 ("retry up to 2 times").
func (l *Layer) completeWithRetry(ctx context.Context, req llm.ChatRequest, maxRetries int) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := l.chat.Complete(ctx, req)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %s", ErrLLMEmptyResponse, lastErr)
	}
	return "", ErrLLMEmptyResponse
}

// GenerateQueries calls the LLM once to produce count distinct queries,
// retrying up to 2 times with the parse error appended on JSON failure
// (spec §4.1). Fails with ErrQueryGenerationFailed after exhausting retries.
func (l *Layer) GenerateQueries(ctx context.Context, topic, reportOrganization string, count int, write Writer) ([]state.GeneratedQuery, error) {
	parseErr := ""
	for attempt := 0; attempt <= 2; attempt++ {
		prompt, err := prompts.Render(prompts.GenerateQueries, map[string]any{
			"Count": count, "Topic": topic, "ReportOrganization": reportOrganization, "ParseError": parseErr,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrQueryGenerationFailed, err)
		}

		raw, err := l.chat.Complete(ctx, llm.ChatRequest{Model: l.cfg.InstructModel, Messages: []llm.ChatMessage{llm.User(prompt)}})
		if err != nil {
			parseErr = err.Error()
			continue
		}

		var queries []state.GeneratedQuery
		if err := jsonx.Unmarshal(raw, &queries); err != nil {
			parseErr = err.Error()
			continue
		}

		write(fmt.Sprintf("generated %d queries", len(queries)))
		return queries, nil
	}
	return nil, fmt.Errorf("%w: exhausted retries: %s", ErrQueryGenerationFailed, parseErr)
}

// SearchWeb calls the web-search collaborator, returning at most WEB_TOPK
// hits. Transport failures are not fatal: one retry, then an empty slice
// (spec §4.1).
func (l *Layer) SearchWeb(ctx context.Context, query string, write Writer) []state.SourceHit {
	if l.search == nil {
		write("web search not configured, skipping")
		return nil
	}

	topK := l.cfg.WebTopK
	if topK <= 0 {
		topK = 5
	}

	var hits []state.SourceHit
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		hits, err = l.search.Search(ctx, query, topK)
		if err == nil {
			write(fmt.Sprintf("web search for %q returned %d hits", query, len(hits)))
			return hits
		}
		time.Sleep(backoff(attempt))
	}
	write(fmt.Sprintf("web search for %q failed after retry: %s", query, err))
	return nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 200 * time.Millisecond
}

// SearchRAG delegates to the Retrieval Adapter (spec §4.2). An empty
// collection, a nil retriever (no vector store configured) or any transport
// error yields an empty, non-fatal slice.
func (l *Layer) SearchRAG(ctx context.Context, collection, query string, write Writer) []state.SourceHit {
	if collection == "" || l.retriever == nil {
		return nil
	}

	topK := l.cfg.RAGTopK
	if topK <= 0 {
		topK = 4
	}

	hits, err := l.retriever.Retrieve(ctx, retrieval.Request{Collection: collection, Query: query, TopK: topK})
	if err != nil {
		write(fmt.Sprintf("rag search for %q failed: %s", query, err))
		return nil
	}
	write(fmt.Sprintf("rag search for %q returned %d hits", query, len(hits)))
	return hits
}

// JudgeRelevance scores a candidate answer against a query (spec §4.3).
func (l *Layer) JudgeRelevance(ctx context.Context, query, candidateAnswer string) (state.RelevanceJudgment, error) {
	return l.judge.Score(ctx, query, candidateAnswer)
}

// Summarize extends priorSummary with new material from hits, bounded to
// SUMMARY_CHAR_LIMIT (spec §4.1). A failed or empty LLM response after
// retry is treated as fatal, matching §7 ("summarize ... surface as fatal").
func (l *Layer) Summarize(ctx context.Context, query string, hits []state.SourceHit, priorSummary string, write Writer) (string, error) {
	var material strings.Builder
	for _, h := range hits {
		material.WriteString("- ")
		material.WriteString(h.Text)
		material.WriteString("\n")
	}

	limit := l.cfg.SummaryCharLimit
	if limit <= 0 {
		limit = 12000
	}

	prompt, err := prompts.Render(prompts.Summarize, map[string]any{
		"Query": query, "PriorSummary": priorSummary, "Material": material.String(), "CharLimit": limit,
	})
	if err != nil {
		return "", fmt.Errorf("tools: failed to render summarize prompt: %w", err)
	}

	out, err := l.completeWithRetry(ctx, llm.ChatRequest{Model: l.cfg.InstructModel, Messages: []llm.ChatMessage{llm.User(prompt)}}, 2)
	if err != nil {
		return "", err
	}

	if len(out) > limit {
		out = out[:limit]
	}
	write(fmt.Sprintf("summarized %d new hits for %q", len(hits), query))
	return out, nil
}

type reflection struct {
	Gap             string   `json:"gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// Reflect identifies at most 2 follow-up queries closing a gap in the
// running summary (spec §4.1).
func (l *Layer) Reflect(ctx context.Context, topic, runningSummary string, write Writer) (string, []string, error) {
	prompt, err := prompts.Render(prompts.Reflect, map[string]any{"Topic": topic, "RunningSummary": runningSummary})
	if err != nil {
		return "", nil, fmt.Errorf("tools: failed to render reflect prompt: %w", err)
	}

	raw, err := l.completeWithRetry(ctx, llm.ChatRequest{Model: l.cfg.ReasoningModel, Messages: []llm.ChatMessage{llm.User(prompt)}}, 2)
	if err != nil {
		return "", nil, err
	}

	var r reflection
	if err := jsonx.Unmarshal(raw, &r); err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrLLMMalformedJSON, err)
	}
	if len(r.FollowUpQueries) > 2 {
		r.FollowUpQueries = r.FollowUpQueries[:2]
	}
	write(fmt.Sprintf("reflection identified gap: %s", r.Gap))
	return r.Gap, r.FollowUpQueries, nil
}

type finalizePayload struct {
	Report    string `json:"report"`
	Citations string `json:"citations"`
}

// Finalize composes the final report and citation block (spec §4.1). The
// citation block passed in is the Citation Builder's deterministic output,
// not re-derived by the LLM; the model only composes the report prose.
func (l *Layer) Finalize(ctx context.Context, topic, reportOrganization, runningSummary, citationBlock string, write Writer) (string, string, error) {
	prompt, err := prompts.Render(prompts.Finalize, map[string]any{
		"Topic": topic, "ReportOrganization": reportOrganization, "RunningSummary": runningSummary,
	})
	if err != nil {
		return "", "", fmt.Errorf("tools: failed to render finalize prompt: %w", err)
	}

	raw, err := l.completeWithRetry(ctx, llm.ChatRequest{Model: l.cfg.InstructModel, Messages: []llm.ChatMessage{llm.User(prompt)}}, 2)
	if err != nil {
		return "", "", err
	}

	var payload finalizePayload
	if err := jsonx.Unmarshal(raw, &payload); err != nil || strings.TrimSpace(payload.Report) == "" {
		return "", "", fmt.Errorf("%w: finalize produced no report", ErrLLMMalformedJSON)
	}
	if strings.Contains(payload.Report, "[topic]") {
		return "", "", fmt.Errorf("%w: finalize emitted a placeholder token", ErrLLMMalformedJSON)
	}

	write("finalized report")
	return payload.Report, citationBlock, nil
}
