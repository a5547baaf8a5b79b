// Package state defines the data model shared across the research engine:
// the immutable request, the mutable per-request state threaded through the
// graph, and the small value types (queries, source hits, judgments) that
// flow between tool calls and graph nodes.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Origin identifies which retrieval backend produced a SourceHit.
type Origin string

const (
	OriginWeb Origin = "web"
	OriginRAG Origin = "rag"
)

// Strategy is the planner's choice of research path.
type Strategy string

const (
	StrategySimpleRAG       Strategy = "SIMPLE_RAG"
	StrategyDynamicStrategy Strategy = "DYNAMIC_STRATEGY"
)

// ResearchRequest is the immutable input to a research run.
type ResearchRequest struct {
	Topic              string `json:"topic"`
	ReportOrganization string `json:"report_organization"`
	Collection         string `json:"collection"`
	SearchWeb          bool   `json:"search_web"`
}

// Validate enforces the invariant in spec §3/§7: at least one retrieval
// surface must be available, or the request fails fast with no stream opened.
func (r *ResearchRequest) Validate() error {
	if r == nil {
		return errors.New("research: request is nil")
	}
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if r.Collection == "" && !r.SearchWeb {
		return fmt.Errorf("%w: collection is empty and search_web is false", ErrInvalidRequest)
	}
	return nil
}

// ErrInvalidRequest is returned by Validate; wrapped with the specific reason.
var ErrInvalidRequest = errors.New("invalid request")

// GeneratedQuery is one query produced by the query-generation tool,
// targeting a logical section of the eventual report.
type GeneratedQuery struct {
	Query         string `json:"query"`
	ReportSection string `json:"report_section"`
	Rationale     string `json:"rationale"`
}

// DocumentCitation identifies a RAG chunk.
type DocumentCitation struct {
	Name       string `json:"name"`
	ChunkIndex int    `json:"chunk_index"`
	Page       *int   `json:"page,omitempty"`
}

// Citation is a URL (web) or a DocumentCitation (rag); exactly one is set,
// matching the Origin of the enclosing SourceHit.
type Citation struct {
	URL      string            `json:"url,omitempty"`
	Document *DocumentCitation `json:"document,omitempty"`
}

// Canonical returns a stable string used for source-uniqueness comparisons
// (spec §3 invariant: distinct (origin, canonical(citation)) pairs).
func (c Citation) Canonical() string {
	if c.Document != nil {
		page := -1
		if c.Document.Page != nil {
			page = *c.Document.Page
		}
		return fmt.Sprintf("doc:%s#%d@%d", c.Document.Name, c.Document.ChunkIndex, page)
	}
	return "url:" + normalizeURL(c.URL)
}

func normalizeURL(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimSuffix(u, "/")
	return strings.ToLower(u)
}

// SourceHit is a single retrieved passage with its origin and citation.
type SourceHit struct {
	Text     string   `json:"text"`
	Origin   Origin   `json:"origin"`
	Citation Citation `json:"citation"`
}

const maxSnippetChars = 2000

// NewSourceHit truncates text to the bounded-snippet invariant (spec §3).
func NewSourceHit(text string, origin Origin, citation Citation) SourceHit {
	if len(text) > maxSnippetChars {
		text = text[:maxSnippetChars]
	}
	return SourceHit{Text: text, Origin: origin, Citation: citation}
}

// RelevanceJudgment is the output of the relevance judge tool.
type RelevanceJudgment struct {
	Score     string `json:"score"` // "yes" or "no"
	Rationale string `json:"rationale"`
}

// IsRelevant reports whether the judgment counts as "yes"; any other value,
// including malformed/ambiguous LLM output, defaults to not-relevant (spec §4.3).
func (j RelevanceJudgment) IsRelevant() bool {
	return strings.EqualFold(strings.TrimSpace(j.Score), "yes")
}

// PerQueryResult records what each retrieval pass found for one query.
type PerQueryResult struct {
	Query GeneratedQuery `json:"query"`
	Web   *SourceHit     `json:"web,omitempty"`
	RAG   *SourceHit     `json:"rag,omitempty"`
}

// UDFResult is what the UDF Strategy Engine returns to the graph.
type UDFResult struct {
	Success bool        `json:"success"`
	Report  string      `json:"report"`
	Sources []SourceHit `json:"sources"`
	Error   string      `json:"error,omitempty"`
}

// ResearchState is the mutable shared state threaded through the graph.
// Graph nodes return a StateDelta that the graph runtime merges in (see
// internal/graph); the UDF engine (AddSources) and the research graph's UDF
// fallback path (Merge) also write to it directly while a node runs.
type ResearchState struct {
	mu *sync.RWMutex

	// RequestID correlates every log line and SSE frame from one run
	// (spec §12); generated once in NewResearchState, never mutated after.
	RequestID string `json:"request_id"`

	// inputs
	Topic              string `json:"topic"`
	ReportOrganization string `json:"report_organization"`
	Collection         string `json:"collection"`
	SearchWeb          bool   `json:"search_web"`

	// plan artifacts
	Plan        string `json:"plan"`
	UDFStrategy string `json:"udf_strategy"`

	// working set
	Queries         []GeneratedQuery `json:"queries"`
	PerQueryResults []PerQueryResult `json:"per_query_results"`

	// accumulators
	RunningSummary string      `json:"running_summary"`
	Sources        []SourceHit `json:"sources"`
	Logs           []string    `json:"logs"`

	// outputs
	FinalReport string `json:"final_report"`
	Citations   string `json:"citations"`

	// control
	ReflectionCount int `json:"reflection_count"`
}

// NewResearchState builds the initial state for a validated request.
func NewResearchState(req *ResearchRequest) *ResearchState {
	return &ResearchState{
		mu:                 &sync.RWMutex{},
		RequestID:          uuid.NewString(),
		Topic:              req.Topic,
		ReportOrganization: req.ReportOrganization,
		Collection:         req.Collection,
		SearchWeb:          req.SearchWeb,
		Queries:            []GeneratedQuery{},
		PerQueryResults:    []PerQueryResult{},
		Sources:            []SourceHit{},
		Logs:               []string{"request accepted"},
	}
}

// sourceKey builds the (origin, canonical citation) uniqueness key.
func sourceKey(h SourceHit) string {
	return string(h.Origin) + "|" + h.Citation.Canonical()
}

// AddSources appends hits not already present by (origin, citation), and
// returns how many were actually added. Safe for concurrent node use.
func (s *ResearchState) AddSources(hits ...SourceHit) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.Sources))
	for _, h := range s.Sources {
		seen[sourceKey(h)] = struct{}{}
	}

	added := 0
	for _, h := range hits {
		k := sourceKey(h)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		s.Sources = append(s.Sources, h)
		added++
	}
	return added
}

// AddLog appends one human-readable progress line.
func (s *ResearchState) AddLog(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs = append(s.Logs, entry)
}

// Snapshot returns a copy safe to marshal/read without racing node writers.
func (s *ResearchState) Snapshot() ResearchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ResearchState{
		RequestID:          s.RequestID,
		Topic:              s.Topic,
		ReportOrganization: s.ReportOrganization,
		Collection:         s.Collection,
		SearchWeb:          s.SearchWeb,
		Plan:               s.Plan,
		UDFStrategy:        s.UDFStrategy,
		Queries:            append([]GeneratedQuery(nil), s.Queries...),
		PerQueryResults:    append([]PerQueryResult(nil), s.PerQueryResults...),
		RunningSummary:     s.RunningSummary,
		Sources:            append([]SourceHit(nil), s.Sources...),
		Logs:               append([]string(nil), s.Logs...),
		FinalReport:        s.FinalReport,
		Citations:          s.Citations,
		ReflectionCount:    s.ReflectionCount,
	}
}

// PartialState is what a graph node hands back after running: scalar
// pointer fields overwrite when non-nil, slice fields are appended,
// matching the merge rule in spec §4.4/§9 ("list fields are concatenated;
// scalar fields are overwritten if set").
type PartialState struct {
	Plan                *string
	UDFStrategy         *string
	Queries             []GeneratedQuery
	PerQueryResults     []PerQueryResult
	RunningSummary      *string
	NewSources          []SourceHit
	LogEntries          []string
	FinalReport         *string
	Citations           *string
	ReflectionIncrement int
}

// Merge applies p to s under a single write lock, returning how many of
// NewSources were actually added (post-dedup).
func (s *ResearchState) Merge(p PartialState) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Plan != nil {
		s.Plan = *p.Plan
	}
	if p.UDFStrategy != nil {
		s.UDFStrategy = *p.UDFStrategy
	}
	s.Queries = append(s.Queries, p.Queries...)
	s.PerQueryResults = append(s.PerQueryResults, p.PerQueryResults...)
	if p.RunningSummary != nil {
		s.RunningSummary = *p.RunningSummary
	}
	if p.FinalReport != nil {
		s.FinalReport = *p.FinalReport
	}
	if p.Citations != nil {
		s.Citations = *p.Citations
	}
	s.ReflectionCount += p.ReflectionIncrement
	s.Logs = append(s.Logs, p.LogEntries...)

	seen := make(map[string]struct{}, len(s.Sources))
	for _, h := range s.Sources {
		seen[sourceKey(h)] = struct{}{}
	}
	added := 0
	for _, h := range p.NewSources {
		k := sourceKey(h)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		s.Sources = append(s.Sources, h)
		added++
	}
	return added
}

// StreamEventType enumerates the three wire event kinds (spec §6).
type StreamEventType string

const (
	EventUpdate   StreamEventType = "update"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is the JSON payload emitted in each SSE `data:` frame.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Node      string          `json:"node,omitempty"`
	State     *ResearchState  `json:"state,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// MarshalJSON takes a consistent snapshot before encoding so concurrent
// node writes can't tear a single emitted event.
func (s *ResearchState) MarshalJSON() ([]byte, error) {
	type alias ResearchState
	snap := s.Snapshot()
	a := alias(snap)
	return json.Marshal(&a)
}
