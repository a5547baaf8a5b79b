package websearch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tangerg-labs/deepresearch/internal/state"
)

func TestHitsFromResults_DiscardsIncompleteAndCaps(t *testing.T) {
	results := []Result{
		{Title: "a", URL: "https://a.example", Text: "content a"},
		{Title: "b", URL: "", Text: "no url"},
		{Title: "c", URL: "https://c.example", Text: ""},
		{Title: "d", URL: "https://d.example", Text: "content d"},
	}

	hits := hitsFromResults(results, 1)
	assert.Len(t, hits, 1)
	assert.Equal(t, state.OriginWeb, hits[0].Origin)
	assert.Equal(t, "https://a.example", hits[0].Citation.URL)
}

func TestHitsFromResults_NoTopKLimit(t *testing.T) {
	results := []Result{
		{URL: "https://a.example", Text: "a"},
		{URL: "https://b.example", Text: "b"},
	}
	hits := hitsFromResults(results, 0)
	assert.Len(t, hits, 2)
}
