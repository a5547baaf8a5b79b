package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/state"
	"github.com/tangerg-labs/deepresearch/internal/tools"
)

// scriptedChat returns queued responses in order, looping the last one
// once exhausted so nodes further down the pipeline always get something.
type scriptedChat struct {
	responses []string
	calls     int
}

func (s *scriptedChat) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted responses")
	}
	return s.responses[len(s.responses)-1], nil
}

type fakeUDF struct {
	result state.UDFResult
}

func (f fakeUDF) Run(ctx context.Context, st *state.ResearchState, write tools.Writer) state.UDFResult {
	return f.result
}

func newTestEngine(chat llm.ChatModel) *Engine {
	return newTestEngineWithUDF(chat, fakeUDF{result: state.UDFResult{Success: false, Error: "not exercised"}})
}

func newTestEngineWithUDF(chat llm.ChatModel, udf UDFRunner) *Engine {
	layer := tools.New(chat, nil, nil, tools.Config{ReasoningModel: "r", InstructModel: "i"})
	return New(chat, "r", "i", layer, udf, Limits{ReflectionLimit: 1, QueriesPerPass: 2})
}

func TestSimpleRAGWebOnly_EndToEnd(t *testing.T) {
	// No vector store configured, so per-query processing skips RAG search
	// and the relevance judge entirely (collection == ""); a nil web-search
	// client also means search_web is a no-op, leaving only the LLM-driven
	// stages (planner, generate_query, summarize, reflect, finalize) to
	// consume scripted chat responses, one per call, in that order.
	chat := &scriptedChat{responses: []string{
		`{"strategy":"SIMPLE_RAG","plan":"a plan","rationale":"r","udf_strategy":""}`,
		`[{"query":"q1","report_section":"s1","rationale":"r"},{"query":"q2","report_section":"s2","rationale":"r"}]`,
		"an extended running summary",
		`{"gap":"none","follow_up_queries":[]}`,
		`{"report":"final report body","citations":""}`,
	}}

	engine := newTestEngine(chat)
	req := &state.ResearchRequest{Topic: "electronics tariffs", SearchWeb: true, Collection: ""}
	require.NoError(t, req.Validate())

	st := state.NewResearchState(req)
	g := engine.Build()
	err := g.Run(context.Background(), st, nil)
	require.NoError(t, err)

	assert.Equal(t, "a plan", st.Plan)
	assert.Empty(t, st.UDFStrategy)
	assert.Equal(t, "final report body", st.FinalReport)
	assert.LessOrEqual(t, st.ReflectionCount, 1)
}

func TestGenerateQueryEmpty_SkipsToFinalize(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"strategy":"SIMPLE_RAG","plan":"a plan","rationale":"r","udf_strategy":""}`,
		`[]`,
		`{"report":"final report body","citations":""}`,
	}}

	engine := newTestEngine(chat)
	req := &state.ResearchRequest{Topic: "t", SearchWeb: true}
	st := state.NewResearchState(req)

	err := engine.Build().Run(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Equal(t, "final report body", st.FinalReport)
	assert.Empty(t, st.PerQueryResults)
}

func TestPlannerUnparseable_DefaultsToSimpleRAG(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		"not json at all",
		"not json at all",
		`[]`,
		`{"report":"final report body","citations":""}`,
	}}

	engine := newTestEngine(chat)
	req := &state.ResearchRequest{Topic: "fallback topic", SearchWeb: true}
	st := state.NewResearchState(req)

	err := engine.Build().Run(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback topic", st.Plan)
	assert.Contains(t, st.Logs, "planner: defaulting to SIMPLE_RAG after unparseable response")
}

func TestObserverSeesEveryNode(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"strategy":"SIMPLE_RAG","plan":"p","rationale":"r","udf_strategy":""}`,
		`[]`,
		`{"report":"body","citations":""}`,
	}}
	engine := newTestEngine(chat)
	req := &state.ResearchRequest{Topic: "t", SearchWeb: true}
	st := state.NewResearchState(req)

	var visited []string
	observer := func(ctx context.Context, node string, s any, err error) {
		visited = append(visited, node)
	}
	err := engine.Build().Run(context.Background(), st, observer)
	require.NoError(t, err)
	assert.Equal(t, []string{NodePlanner, NodeGenerateQuery, NodeFinalizeSummary}, visited)
}

func TestUDFSuccess_UsesReturnedReportAndSources(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"strategy":"DYNAMIC_STRATEGY","plan":"a plan","rationale":"r","udf_strategy":"compare sources across three years"}`,
	}}
	udf := fakeUDF{result: state.UDFResult{
		Success: true,
		Report:  "udf-produced report",
		Sources: []state.SourceHit{state.NewSourceHit("snippet", state.OriginWeb, state.Citation{URL: "https://example.com"})},
	}}
	engine := newTestEngineWithUDF(chat, udf)
	req := &state.ResearchRequest{Topic: "t", SearchWeb: true}
	st := state.NewResearchState(req)

	err := engine.Build().Run(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Equal(t, "compare sources across three years", st.UDFStrategy)
	assert.Equal(t, "udf-produced report", st.FinalReport)
	assert.Len(t, st.Sources, 1)
	assert.Contains(t, st.Citations, "example.com")
}

func TestUDFFailure_FallsBackToSimpleRAG(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"strategy":"DYNAMIC_STRATEGY","plan":"a plan","rationale":"r","udf_strategy":"compare sources across three years"}`,
		`[{"query":"q1","report_section":"s1","rationale":"r"}]`,
		"running summary from fallback",
		`{"report":"fallback report","citations":""}`,
	}}
	udf := fakeUDF{result: state.UDFResult{Success: false, Error: "compiler rejected the plan"}}
	engine := newTestEngineWithUDF(chat, udf)
	req := &state.ResearchRequest{Topic: "t", SearchWeb: true}
	st := state.NewResearchState(req)

	err := engine.Build().Run(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Empty(t, st.UDFStrategy)
	assert.Equal(t, "fallback report", st.FinalReport)
	assert.Len(t, st.PerQueryResults, 1)
	found := false
	for _, l := range st.Logs {
		if l == "UDF failed, falling back to SIMPLE_RAG: compiler rejected the plan" {
			found = true
		}
	}
	assert.True(t, found, "expected fallback log entry")
}
