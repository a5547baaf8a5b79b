// Package udf implements the UDF Strategy Engine (spec §4.6): it compiles a
// planner's natural-language strategy into a bounded JSON step program over
// the Tool Layer, then executes that program, collecting sources and a final
// report. It is the one place in this repo that treats the Tool Layer as a
// closed API surface rather than calling its methods directly by name.
package udf

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tangerg-labs/deepresearch/internal/citation"
	"github.com/tangerg-labs/deepresearch/internal/jsonx"
	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/prompts"
	"github.com/tangerg-labs/deepresearch/internal/state"
	"github.com/tangerg-labs/deepresearch/internal/tools"
)

// ErrUDFCompilationFailed covers every way Stage A can reject a program:
// unknown op, an out-of-order $name reference, or too many steps (spec §4.6).
var ErrUDFCompilationFailed = fmt.Errorf("udf: compilation failed")

// ErrUDFExecutionFailed wraps a fatal failure from a terminal Tool Layer
// call (summarize, reflect, finalize) during Stage B (spec §4.6/§7).
var ErrUDFExecutionFailed = fmt.Errorf("udf: execution failed")

const defaultMaxSteps = 12

var allowedOps = map[string]bool{
	"search_web":      true,
	"search_rag":      true,
	"summarize":       true,
	"judge_relevance": true,
	"reflect":         true,
	"finalize":        true,
	"noop":            true,
}

// Step is one entry in a compiled program (spec §4.6: "{op, args, bind}").
type Step struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
	Bind string         `json:"bind"`
}

// Program is the ordered step list produced by Stage A.
type Program []Step

// Compile translates a natural-language strategy into a validated Program,
// rejecting any program with an unknown op, a $name reference to a binding
// that hasn't appeared yet, or more steps than maxSteps (spec §4.6).
func Compile(ctx context.Context, chat llm.ChatModel, model, topic, collection, strategy string, maxSteps int) (Program, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	prompt, err := prompts.Render(prompts.UDFCompile, map[string]any{
		"MaxSteps": maxSteps, "Topic": topic, "Collection": collection, "Strategy": strategy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rendering compile prompt: %s", ErrUDFCompilationFailed, err)
	}

	raw, err := chat.Complete(ctx, llm.ChatRequest{Model: model, Messages: []llm.ChatMessage{llm.User(prompt)}})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUDFCompilationFailed, err)
	}

	var program Program
	if err := jsonx.Unmarshal(raw, &program); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUDFCompilationFailed, err)
	}

	if err := validate(program, maxSteps); err != nil {
		return nil, err
	}
	return program, nil
}

func validate(program Program, maxSteps int) error {
	if len(program) > maxSteps {
		return fmt.Errorf("%w: %d steps exceeds UDF_MAX_STEPS of %d", ErrUDFCompilationFailed, len(program), maxSteps)
	}

	bound := make(map[string]bool)
	for i, step := range program {
		if !allowedOps[step.Op] {
			return fmt.Errorf("%w: step %d has unknown op %q", ErrUDFCompilationFailed, i, step.Op)
		}
		for _, v := range step.Args {
			if ref, ok := v.(string); ok && strings.HasPrefix(ref, "$") {
				name := strings.TrimPrefix(ref, "$")
				if !bound[name] {
					return fmt.Errorf("%w: step %d references %q before it is bound", ErrUDFCompilationFailed, i, ref)
				}
			}
		}
		if step.Bind != "" {
			bound[step.Bind] = true
		}
	}
	return nil
}

// Engine executes compiled Programs against a Tool Layer (Stage B).
type Engine struct {
	chat         llm.ChatModel
	compileModel string
	tools        *tools.Layer
	maxSteps     int
}

// New builds a UDF Strategy Engine. compileModel is the reasoning model used
// for Stage A compilation; maxSteps of 0 uses the spec default of 12.
func New(chat llm.ChatModel, compileModel string, toolLayer *tools.Layer, maxSteps int) *Engine {
	return &Engine{chat: chat, compileModel: compileModel, tools: toolLayer, maxSteps: maxSteps}
}

// binding is whatever a step's Bind name resolves to for later steps:
// source hits from a search step, a summary string, or a judgment.
type binding struct {
	hits    []state.SourceHit
	text    string
	hasText bool
}

// Run compiles and executes st.UDFStrategy against the Tool Layer (spec
// §4.6). It implements the research.UDFRunner seam so internal/research
// never imports this package directly.
func (e *Engine) Run(ctx context.Context, st *state.ResearchState, write tools.Writer) state.UDFResult {
	program, err := Compile(ctx, e.chat, e.compileModel, st.Topic, st.Collection, st.UDFStrategy, e.maxSteps)
	if err != nil {
		return state.UDFResult{Success: false, Error: err.Error()}
	}

	bindings := make(map[string]binding)
	var accumulated []state.SourceHit
	summary := st.RunningSummary
	var finalReport string
	ranFinalize := false

	for i, step := range program {
		write(fmt.Sprintf("UDF step %d: %s(%s)", i, step.Op, describeArgs(step.Args)))

		switch step.Op {
		case "search_web":
			query := resolveString(step.Args["query"], bindings)
			hits := e.tools.SearchWeb(ctx, query, write)
			accumulated = append(accumulated, hits...)
			st.AddSources(hits...)
			if step.Bind != "" {
				bindings[step.Bind] = binding{hits: hits}
			}

		case "search_rag":
			collection := resolveString(step.Args["collection"], bindings)
			if collection == "" {
				collection = st.Collection
			}
			query := resolveString(step.Args["query"], bindings)
			hits := e.tools.SearchRAG(ctx, collection, query, write)
			accumulated = append(accumulated, hits...)
			st.AddSources(hits...)
			if step.Bind != "" {
				bindings[step.Bind] = binding{hits: hits}
			}

		case "judge_relevance":
			query := resolveString(step.Args["query"], bindings)
			candidate := resolveString(step.Args["candidate_answer"], bindings)
			judgment, _ := e.tools.JudgeRelevance(ctx, query, candidate)
			if step.Bind != "" {
				bindings[step.Bind] = binding{text: judgment.Score, hasText: true}
			}

		case "summarize":
			query := resolveString(step.Args["query"], bindings)
			hits := resolveHits(step.Args["hits"], bindings)
			prior := resolveString(step.Args["prior_summary"], bindings)
			if prior == "" {
				prior = summary
			}
			out, err := e.tools.Summarize(ctx, query, hits, prior, write)
			if err != nil {
				return state.UDFResult{Success: false, Error: fmt.Errorf("%w: step %d: %s", ErrUDFExecutionFailed, i, err).Error(), Sources: accumulated}
			}
			summary = out
			if step.Bind != "" {
				bindings[step.Bind] = binding{text: out, hasText: true}
			}

		case "reflect":
			topic := resolveString(step.Args["topic"], bindings)
			if topic == "" {
				topic = st.Topic
			}
			running := resolveString(step.Args["running_summary"], bindings)
			if running == "" {
				running = summary
			}
			_, _, err := e.tools.Reflect(ctx, topic, running, write)
			if err != nil {
				return state.UDFResult{Success: false, Error: fmt.Errorf("%w: step %d: %s", ErrUDFExecutionFailed, i, err).Error(), Sources: accumulated}
			}

		case "finalize":
			topic := resolveString(step.Args["topic"], bindings)
			if topic == "" {
				topic = st.Topic
			}
			reportOrg := resolveString(step.Args["report_organization"], bindings)
			if reportOrg == "" {
				reportOrg = st.ReportOrganization
			}
			running := resolveString(step.Args["running_summary"], bindings)
			if running == "" {
				running = summary
			}
			citationBlock := citation.Build(append(append([]state.SourceHit{}, st.Sources...), accumulated...))
			report, _, err := e.tools.Finalize(ctx, topic, reportOrg, running, citationBlock, write)
			if err != nil {
				return state.UDFResult{Success: false, Error: fmt.Errorf("%w: step %d: %s", ErrUDFExecutionFailed, i, err).Error(), Sources: accumulated}
			}
			finalReport = report
			ranFinalize = true

		case "noop":
			// intentionally does nothing; used as a compiler filler step.
		}
	}

	if !ranFinalize {
		citationBlock := citation.Build(append(append([]state.SourceHit{}, st.Sources...), accumulated...))
		report, _, err := e.tools.Finalize(ctx, st.Topic, st.ReportOrganization, summary, citationBlock, write)
		if err != nil {
			return state.UDFResult{Success: false, Error: fmt.Errorf("%w: synthesized finalize: %s", ErrUDFExecutionFailed, err).Error(), Sources: accumulated}
		}
		finalReport = report
		write("UDF program did not end in finalize; synthesized one from accumulated state")
	}

	return state.UDFResult{Success: true, Report: finalReport, Sources: accumulated}
}

func resolveString(v any, bindings map[string]binding) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if strings.HasPrefix(s, "$") {
		if b, ok := bindings[strings.TrimPrefix(s, "$")]; ok {
			return b.text
		}
		return ""
	}
	return s
}

func resolveHits(v any, bindings map[string]binding) []state.SourceHit {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "$") {
		if b, ok := bindings[strings.TrimPrefix(s, "$")]; ok {
			return b.hits
		}
	}
	return nil
}

// describeArgs renders args in sorted key order so the "UDF step i: op(...)"
// log line is deterministic across runs (spec §8 idempotence: identical
// mocked responses must produce an identical terminal state, including logs).
func describeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}
