// Package prompts holds the Tool Layer's prompt templates, rendered with
// text/template in the same style as the teacher's prompt.Template
// (parse-then-execute into a strings.Builder). Each template states the
// JSON or text response shape it expects back from the LLM.
package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// Render parses tmpl and executes it against data, matching the teacher's
// prompt.Template.Execute (Parse then Execute into a builder) but as a
// single stateless call, since every call here renders a fresh prompt.
func Render(tmpl string, data map[string]any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("prompts: failed to parse template: %w", err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompts: failed to render template: %w", err)
	}
	return sb.String(), nil
}

const Planner = `You are the planning stage of a research assistant. Given a topic and a
desired report organization, decide whether a fixed research pipeline
suffices or whether a custom multi-step strategy is needed.

Topic: {{.Topic}}
Report organization: {{.ReportOrganization}}

Respond with strict JSON only, no prose, of the form:
{"strategy": "SIMPLE_RAG" or "DYNAMIC_STRATEGY", "plan": "<one paragraph>", "rationale": "<one sentence>", "udf_strategy": "<numbered list of steps, only if DYNAMIC_STRATEGY, else empty string>"}`

const GenerateQueries = `Generate {{.Count}} distinct search queries that together cover the
topic below for a report organized as described.

Topic: {{.Topic}}
Report organization: {{.ReportOrganization}}
{{if .ParseError}}
Your previous response could not be parsed as JSON: {{.ParseError}}
Return ONLY a JSON array this time.
{{end}}
Respond with a strict JSON array of objects, no prose:
[{"query": "...", "report_section": "...", "rationale": "..."}]`

const Summarize = `Extend the running summary below using only the new material provided.
Do not invent citations or facts not present in the material. Keep the
result under {{.CharLimit}} characters.

Query: {{.Query}}

Prior summary:
{{.PriorSummary}}

New material:
{{.Material}}

Respond with the full updated summary as plain text, no JSON, no preamble.`

const JudgeRelevance = `Does the candidate answer below adequately address the query? Respond
with strict JSON only: {"score": "yes" or "no", "rationale": "<one sentence>"}

Query: {{.Query}}

Candidate answer:
{{.CandidateAnswer}}`

const Reflect = `Given the topic and the running summary so far, identify the single
biggest gap in coverage and up to 2 follow-up search queries that would
close it.

Topic: {{.Topic}}

Running summary:
{{.RunningSummary}}

Respond with strict JSON only: {"gap": "<one sentence>", "follow_up_queries": ["..."]}`

const Finalize = `Compose the final report in the same language as the topic below, using
the running summary as source material. Do not include placeholder tokens
such as "[topic]". Organize the report as described.

Topic: {{.Topic}}
Report organization: {{.ReportOrganization}}

Running summary:
{{.RunningSummary}}

Respond with strict JSON only: {"report": "<the full report, markdown>", "citations": "<a markdown citation block, or empty string>"}`

const UDFCompile = `Translate the natural-language research strategy below into an ordered
JSON program over this fixed tool API. Each step has the shape
{"op": "<tool name>", "args": {...}, "bind": "<optional name>"}. "args"
values may be literals or "$name" references to a previous step's "bind".
Allowed ops: search_web(query), search_rag(collection, query),
summarize(query, hits, prior_summary), judge_relevance(query, candidate_answer),
reflect(topic, running_summary), finalize(topic, report_organization, running_summary, sources), noop().
Use at most {{.MaxSteps}} steps. The program must end with a finalize step.

Topic: {{.Topic}}
Collection: {{.Collection}}
Strategy:
{{.Strategy}}

Respond with a strict JSON array of steps, no prose.`
