// Package research builds the concrete Research Graph (spec §4.5): planner,
// generate_query, web_research, summarize_sources, reflect_on_summary,
// finalize_summary, wired onto internal/graph. It also dispatches to the
// UDF Strategy Engine when the planner picks DYNAMIC_STRATEGY.
package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/tangerg-labs/deepresearch/internal/citation"
	"github.com/tangerg-labs/deepresearch/internal/graph"
	"github.com/tangerg-labs/deepresearch/internal/jsonx"
	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/prompts"
	"github.com/tangerg-labs/deepresearch/internal/state"
	"github.com/tangerg-labs/deepresearch/internal/tools"
)

// Node names (spec §4.5), exported so internal/streaming can label events.
const (
	NodePlanner          = "planner"
	NodeGenerateQuery    = "generate_query"
	NodeWebResearch      = "web_research"
	NodeSummarizeSources = "summarize_sources"
	NodeReflectOnSummary = "reflect_on_summary"
	NodeFinalizeSummary  = "finalize_summary"
	NodeUDFExecution     = "udf_execution"
)

// UDFRunner is the subset of the UDF Strategy Engine the research graph
// depends on, so internal/research never imports internal/udf directly
// (kept as a small seam instead, the way the teacher's flow nodes accept
// plain function values rather than concrete package types).
type UDFRunner interface {
	Run(ctx context.Context, st *state.ResearchState, write tools.Writer) state.UDFResult
}

// Limits bundles the bounds from spec §6 the graph needs.
type Limits struct {
	ReflectionLimit int
	QueriesPerPass  int
}

// Engine holds everything the graph nodes close over.
type Engine struct {
	chat           llm.ChatModel
	reasoningModel string
	instructModel  string
	tools          *tools.Layer
	udf            UDFRunner
	limits         Limits
}

func New(chat llm.ChatModel, reasoningModel, instructModel string, toolLayer *tools.Layer, udf UDFRunner, limits Limits) *Engine {
	return &Engine{
		chat:           chat,
		reasoningModel: reasoningModel,
		instructModel:  instructModel,
		tools:          toolLayer,
		udf:            udf,
		limits:         limits,
	}
}

// delta adapts a state.PartialState into a graph.StateDelta.
type delta struct {
	st      *state.ResearchState
	partial state.PartialState
}

func (d delta) Apply() { d.st.Merge(d.partial) }

func writerFor(entries *[]string) tools.Writer {
	return func(entry string) { *entries = append(*entries, entry) }
}

// Build assembles the Research Graph (spec §4.5): conditional edges out of
// planner and generate_query (straight to finalize_summary when no queries
// were generated), a conditional loop edge out of reflect_on_summary back
// into web_research (the bounded reflection backedge), and static edges
// everywhere else.
func (e *Engine) Build() *graph.Graph {
	g := graph.New(NodePlanner)

	g.AddNode(NodePlanner, e.plannerNode)
	g.SetBranchEdge(NodePlanner, e.plannerBranch)

	g.AddNode(NodeGenerateQuery, e.generateQueryNode)
	g.SetBranchEdge(NodeGenerateQuery, e.generateQueryBranch)

	g.AddNode(NodeWebResearch, e.webResearchNode)
	g.SetStaticEdge(NodeWebResearch, NodeSummarizeSources)

	g.AddNode(NodeSummarizeSources, e.summarizeSourcesNode)
	g.SetStaticEdge(NodeSummarizeSources, NodeReflectOnSummary)

	g.AddNode(NodeReflectOnSummary, e.reflectOnSummaryNode)
	g.SetBranchEdge(NodeReflectOnSummary, e.reflectOnSummaryBranch)

	g.AddNode(NodeFinalizeSummary, e.finalizeSummaryNode)
	g.SetStaticEdge(NodeFinalizeSummary, graph.End)

	g.AddNode(NodeUDFExecution, e.udfExecutionNode)
	g.SetStaticEdge(NodeUDFExecution, graph.End)

	return g
}

type plannerPayload struct {
	Strategy    string `json:"strategy"`
	Plan        string `json:"plan"`
	Rationale   string `json:"rationale"`
	UDFStrategy string `json:"udf_strategy"`
}

// plannerNode calls the LLM for a strategy decision, retrying once on parse
// failure before defaulting to SIMPLE_RAG with plan=topic (spec §4.5 edge case).
func (e *Engine) plannerNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	prompt, err := prompts.Render(prompts.Planner, map[string]any{
		"Topic": st.Topic, "ReportOrganization": st.ReportOrganization,
	})
	if err != nil {
		return nil, fmt.Errorf("research: failed to render planner prompt: %w", err)
	}

	var payload plannerPayload
	parsed := false
	for attempt := 0; attempt < 2; attempt++ {
		raw, callErr := e.chat.Complete(ctx, llm.ChatRequest{Model: e.reasoningModel, Messages: []llm.ChatMessage{llm.User(prompt)}})
		if callErr != nil {
			continue
		}
		if jsonx.Unmarshal(raw, &payload) == nil {
			parsed = true
			break
		}
	}

	var entries []string
	partial := state.PartialState{}
	if !parsed {
		plan := st.Topic
		partial.Plan = &plan
		entries = append(entries, "planner: defaulting to SIMPLE_RAG after unparseable response")
		partial.LogEntries = entries
		return delta{st, partial}, nil
	}

	plan := payload.Plan
	partial.Plan = &plan
	entries = append(entries, fmt.Sprintf("planner selected %s", payload.Strategy))
	if payload.Strategy == "DYNAMIC_STRATEGY" && strings.TrimSpace(payload.UDFStrategy) != "" {
		udfStrategy := payload.UDFStrategy
		partial.UDFStrategy = &udfStrategy
	}
	partial.LogEntries = entries
	return delta{st, partial}, nil
}

func (e *Engine) plannerBranch(ctx context.Context, s any) (string, error) {
	st := s.(*state.ResearchState)
	if strings.TrimSpace(st.UDFStrategy) != "" {
		return NodeUDFExecution, nil
	}
	return NodeGenerateQuery, nil
}

// generateQueryNode calls generate_queries; an empty result is not an
// error, it's routed straight to finalize (spec §4.5 edge case).
func (e *Engine) generateQueryNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	var entries []string
	queries, err := e.tools.GenerateQueries(ctx, st.Topic, st.ReportOrganization, e.limits.QueriesPerPass, writerFor(&entries))
	if err != nil {
		return nil, err
	}

	partial := state.PartialState{Queries: queries, LogEntries: entries}
	if len(queries) == 0 {
		summary := "no queries generated"
		partial.RunningSummary = &summary
	}
	return delta{st, partial}, nil
}

func (e *Engine) generateQueryBranch(ctx context.Context, s any) (string, error) {
	st := s.(*state.ResearchState)
	if len(st.Queries) == 0 {
		return NodeFinalizeSummary, nil
	}
	return NodeWebResearch, nil
}

// webResearchNode processes every not-yet-handled query in strict
// insertion order (spec §4.5: "per-query fan-in, not true parallel").
func (e *Engine) webResearchNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	pending := st.Queries[len(st.PerQueryResults):]
	var entries []string
	var newSources []state.SourceHit
	results := make([]state.PerQueryResult, 0, len(pending))

	for _, q := range pending {
		result, hits, logs := e.processQuery(ctx, st, q)
		results = append(results, result)
		newSources = append(newSources, hits...)
		entries = append(entries, logs...)
	}

	partial := state.PartialState{PerQueryResults: results, NewSources: newSources, LogEntries: entries}
	return delta{st, partial}, nil
}

func (e *Engine) processQuery(ctx context.Context, st *state.ResearchState, q state.GeneratedQuery) (state.PerQueryResult, []state.SourceHit, []string) {
	var entries []string
	write := writerFor(&entries)

	ragHits := e.tools.SearchRAG(ctx, st.Collection, q.Query, write)

	ragAnswer := concatenateSnippets(ragHits)
	judgment := state.RelevanceJudgment{Score: "no"}
	if st.Collection != "" {
		if j, err := e.tools.JudgeRelevance(ctx, q.Query, ragAnswer); err == nil {
			judgment = j
		}
	}

	// Web search fires when collection is empty (unconditionally, so a
	// web-only run is possible) or when the judge found RAG insufficient;
	// spec §4.5/§9: the source's "only on explicit no" latent bug is fixed
	// here by treating an empty collection as an automatic "no".
	var webHits []state.SourceHit
	if st.SearchWeb && (st.Collection == "" || !judgment.IsRelevant()) {
		webHits = e.tools.SearchWeb(ctx, q.Query, write)
	}

	if len(ragHits) == 0 && len(webHits) == 0 {
		entries = append(entries, fmt.Sprintf("no sources for query %q", q.Query))
	}

	result := state.PerQueryResult{Query: q}
	if len(ragHits) > 0 {
		first := ragHits[0]
		result.RAG = &first
	}
	if len(webHits) > 0 {
		first := webHits[0]
		result.Web = &first
	}

	all := make([]state.SourceHit, 0, len(ragHits)+len(webHits))
	all = append(all, ragHits...)
	all = append(all, webHits...)
	return result, all, entries
}

func concatenateSnippets(hits []state.SourceHit) string {
	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(h.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// summarizeSourcesNode extends running_summary (spec §4.5 step 4) with the
// hits passHits collects: the hits recorded in per_query_results across all
// passes so far, not only the queries handled in the latest pass.
func (e *Engine) summarizeSourcesNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	hits := passHits(st)
	var entries []string
	summary, err := e.tools.Summarize(ctx, st.Topic, hits, st.RunningSummary, writerFor(&entries))
	if err != nil {
		return nil, err
	}

	partial := state.PartialState{RunningSummary: &summary, LogEntries: entries}
	return delta{st, partial}, nil
}

// passHits gathers the SourceHits recorded in per_query_results: at most the
// first RAG hit and the first web hit of each query, for every query handled
// so far. There is no "this pass only" cursor, so earlier passes' hits are
// passed again, and further hits that were added to sources are not passed.
func passHits(st *state.ResearchState) []state.SourceHit {
	hits := make([]state.SourceHit, 0, len(st.PerQueryResults)*2)
	for _, r := range st.PerQueryResults {
		if r.RAG != nil {
			hits = append(hits, *r.RAG)
		}
		if r.Web != nil {
			hits = append(hits, *r.Web)
		}
	}
	return hits
}

// reflectOnSummaryNode runs the bounded reflection loop (spec §4.5 step 5):
// below REFLECTION_LIMIT, follow-up queries are appended and the graph
// loops back through web_research and summarize_sources.
func (e *Engine) reflectOnSummaryNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	if st.ReflectionCount >= e.limits.ReflectionLimit {
		return delta{st, state.PartialState{}}, nil
	}

	var entries []string
	_, followUps, err := e.tools.Reflect(ctx, st.Topic, st.RunningSummary, writerFor(&entries))
	if err != nil {
		return nil, err
	}

	partial := state.PartialState{LogEntries: entries, ReflectionIncrement: 1}
	for _, q := range followUps {
		partial.Queries = append(partial.Queries, state.GeneratedQuery{Query: q, ReportSection: "reflection follow-up"})
	}
	return delta{st, partial}, nil
}

func (e *Engine) reflectOnSummaryBranch(ctx context.Context, s any) (string, error) {
	st := s.(*state.ResearchState)
	if st.ReflectionCount > 0 && len(st.Queries) > len(st.PerQueryResults) {
		return NodeWebResearch, nil
	}
	return NodeFinalizeSummary, nil
}

// finalizeSummaryNode composes the final report and citation block (spec
// §4.5 step 6 / §4.8), then ends the graph.
func (e *Engine) finalizeSummaryNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	citationBlock := citation.Build(st.Sources)
	var entries []string
	report, citations, err := e.tools.Finalize(ctx, st.Topic, st.ReportOrganization, st.RunningSummary, citationBlock, writerFor(&entries))
	if err != nil {
		return nil, err
	}

	partial := state.PartialState{FinalReport: &report, Citations: &citations, LogEntries: entries}
	return delta{st, partial}, nil
}

// udfExecutionNode hands off to the UDF Strategy Engine (spec §4.6). On
// failure it clears udf_strategy and runs the fallback steps inline through
// fallbackToSimpleRAG (a synchronous in-node recovery rather than an edge,
// since the graph has already committed to the udf_execution node).
func (e *Engine) udfExecutionNode(ctx context.Context, s any) (graph.StateDelta, error) {
	st := s.(*state.ResearchState)

	var entries []string
	result := e.udf.Run(ctx, st, writerFor(&entries))
	if !result.Success {
		entries = append(entries, fmt.Sprintf("UDF failed, falling back to SIMPLE_RAG: %s", result.Error))
		return e.fallbackToSimpleRAG(ctx, st, entries)
	}

	citationBlock := citation.Build(append(append([]state.SourceHit{}, st.Sources...), result.Sources...))
	report := result.Report
	partial := state.PartialState{
		NewSources:  result.Sources,
		FinalReport: &report,
		Citations:   &citationBlock,
		LogEntries:  entries,
	}
	return delta{st, partial}, nil
}

// fallbackToSimpleRAG runs generate_query, then web_research and
// summarize_sources when queries were generated, then finalize_summary,
// inline when the UDF engine fails, since the graph runtime has no way to
// re-target a node mid-step. reflect_on_summary is not run on this path,
// and the graph observer sees only the enclosing udf_execution step, not
// the inline steps.
func (e *Engine) fallbackToSimpleRAG(ctx context.Context, st *state.ResearchState, entries []string) (graph.StateDelta, error) {
	empty := ""
	st.Merge(state.PartialState{UDFStrategy: &empty, LogEntries: entries})

	run := func(step func(context.Context, any) (graph.StateDelta, error)) error {
		d, err := step(ctx, st)
		if err != nil {
			return err
		}
		if d != nil {
			d.Apply()
		}
		return nil
	}

	if err := run(e.generateQueryNode); err != nil {
		return nil, err
	}
	if len(st.Queries) > len(st.PerQueryResults) {
		if err := run(e.webResearchNode); err != nil {
			return nil, err
		}
		if err := run(e.summarizeSourcesNode); err != nil {
			return nil, err
		}
	}
	if err := run(e.finalizeSummaryNode); err != nil {
		return nil, err
	}
	return delta{st, state.PartialState{}}, nil
}
