package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SubstitutesFields(t *testing.T) {
	out, err := Render(Planner, map[string]any{
		"Topic":              "tariffs on electronics",
		"ReportOrganization": "brief summary",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "tariffs on electronics")
	assert.Contains(t, out, "brief summary")
}

func TestRender_ConditionalParseErrorBlock(t *testing.T) {
	out, err := Render(GenerateQueries, map[string]any{
		"Count": 3, "Topic": "t", "ReportOrganization": "r", "ParseError": "unexpected EOF",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "unexpected EOF")
}

func TestRender_NoParseErrorOmitsBlock(t *testing.T) {
	out, err := Render(GenerateQueries, map[string]any{
		"Count": 3, "Topic": "t", "ReportOrganization": "r", "ParseError": "",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "could not be parsed")
}
