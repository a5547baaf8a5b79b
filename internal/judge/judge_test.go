package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangerg-labs/deepresearch/internal/llm"
)

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	return f.response, f.err
}

func TestScore_ParsesYes(t *testing.T) {
	j := New(&fakeChat{response: `{"score": "yes", "rationale": "covers it"}`}, "gpt-4o")
	result, err := j.Score(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.True(t, result.IsRelevant())
	assert.Equal(t, "covers it", result.Rationale)
}

func TestScore_MalformedDefaultsToNo(t *testing.T) {
	j := New(&fakeChat{response: "not json at all"}, "gpt-4o")
	result, err := j.Score(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.False(t, result.IsRelevant())
}

func TestScore_CallFailureDefaultsToNo(t *testing.T) {
	j := New(&fakeChat{err: errors.New("boom")}, "gpt-4o")
	result, err := j.Score(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.False(t, result.IsRelevant())
}
