package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainObject(t *testing.T) {
	raw, err := Extract(`{"a": 1, "b": [1,2,3]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1, "b": [1,2,3]}`, raw)
}

func TestExtract_WrappedInProseAndFences(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"queries\": [\"a\", \"b\"]}\n```\nLet me know if that works."
	raw, err := Extract(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"queries": ["a", "b"]}`, raw)
}

func TestExtract_NestedBraces(t *testing.T) {
	text := `prefix {"outer": {"inner": "a}b"}, "x": 1} suffix`
	raw, err := Extract(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outer": {"inner": "a}b"}, "x": 1}`, raw)
}

func TestExtract_NoJSON(t *testing.T) {
	_, err := Extract("no json here at all")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestUnmarshal_IntoStruct(t *testing.T) {
	type plan struct {
		Strategy string `json:"strategy"`
	}
	var p plan
	err := Unmarshal(`the plan is {"strategy": "SIMPLE_RAG"}`, &p)
	require.NoError(t, err)
	assert.Equal(t, "SIMPLE_RAG", p.Strategy)
}

func TestString_ExtractsField(t *testing.T) {
	v, ok := String(`{"score": "yes", "rationale": "covers the topic"}`, "score")
	require.True(t, ok)
	assert.Equal(t, "yes", v)
}
