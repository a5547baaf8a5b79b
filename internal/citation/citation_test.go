package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tangerg-labs/deepresearch/internal/state"
)

func hit(origin state.Origin, url, docName string, chunk int) state.SourceHit {
	c := state.Citation{}
	if origin == state.OriginWeb {
		c.URL = url
	} else {
		c.Document = &state.DocumentCitation{Name: docName, ChunkIndex: chunk}
	}
	return state.NewSourceHit("text", origin, c)
}

func TestBuild_Empty(t *testing.T) {
	assert.Equal(t, "", Build(nil))
}

func TestBuild_GroupsAndNumbersByOrigin(t *testing.T) {
	sources := []state.SourceHit{
		hit(state.OriginWeb, "https://a.example", "", 0),
		hit(state.OriginRAG, "", "doc1", 0),
		hit(state.OriginWeb, "https://b.example", "", 0),
	}
	out := Build(sources)
	assert.Contains(t, out, "## Web sources")
	assert.Contains(t, out, "## Document sources")
	assert.Contains(t, out, "https://a.example")
	assert.Contains(t, out, "https://b.example")
	assert.Contains(t, out, "doc1")
}

func TestBuild_DedupesByCanonicalCitation(t *testing.T) {
	sources := []state.SourceHit{
		hit(state.OriginWeb, "https://a.example/", "", 0),
		hit(state.OriginWeb, "https://a.example", "", 0), // same after normalization
	}
	out := Build(sources)
	// One surviving entry, which renders its URL as both link text and target.
	assert.Equal(t, 2, countOccurrences(out, "https://a.example"))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
