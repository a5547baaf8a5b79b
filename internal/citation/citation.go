// Package citation implements the Citation Builder (spec §4.8): group
// sources by origin, deduplicate by canonical citation, and render a
// numbered Markdown block ordered by first appearance.
package citation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/tangerg-labs/deepresearch/internal/state"
)

// Build renders sources into a Markdown citation block. Order-preserving
// dedup follows the teacher's DeduplicationDocumentRefiner (seen-set keyed
// on an identity, first occurrence wins); grouping by origin uses
// samber/lo.GroupBy for the same "group then format" shape the teacher's
// rag pipeline uses around its refiners.
func Build(sources []state.SourceHit) string {
	if len(sources) == 0 {
		return ""
	}

	deduped := dedupeByCanonical(sources)
	grouped := lo.GroupBy(deduped, func(h state.SourceHit) state.Origin { return h.Origin })

	var sb strings.Builder
	n := 1
	if web, ok := grouped[state.OriginWeb]; ok && len(web) > 0 {
		sb.WriteString("## Web sources\n\n")
		for _, h := range web {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", n, h.Citation.URL, h.Citation.URL)
			n++
		}
		sb.WriteString("\n")
	}
	if rag, ok := grouped[state.OriginRAG]; ok && len(rag) > 0 {
		sb.WriteString("## Document sources\n\n")
		for _, h := range rag {
			d := h.Citation.Document
			if d.Page != nil {
				fmt.Fprintf(&sb, "%d. %s (chunk %d, page %d)\n", n, d.Name, d.ChunkIndex, *d.Page)
			} else {
				fmt.Fprintf(&sb, "%d. %s (chunk %d)\n", n, d.Name, d.ChunkIndex)
			}
			n++
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// dedupeByCanonical removes sources sharing an (origin, canonical citation)
// key, preserving first-occurrence order.
func dedupeByCanonical(sources []state.SourceHit) []state.SourceHit {
	seen := make(map[string]struct{}, len(sources))
	out := make([]state.SourceHit, 0, len(sources))
	for _, h := range sources {
		key := string(h.Origin) + "|" + h.Citation.Canonical()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}
