package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChat and fakeEmbedding check that hand-written fakes satisfy the
// consumed interfaces without a network dependency, in the style of the
// teacher's document_retriever_vectorstore_test.go fakes. They are local to
// this package; callers' tests (internal/tools, internal/research, ...)
// define their own fakes.

type fakeChat struct {
	response string
	err      error
	lastReq  ChatRequest
}

func (f *fakeChat) Complete(ctx context.Context, req ChatRequest) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeEmbedding struct {
	vectors [][]float32
}

func (f *fakeEmbedding) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	return f.vectors, nil
}

func TestFakeChat_RecordsRequest(t *testing.T) {
	fc := &fakeChat{response: "hello"}
	var m ChatModel = fc

	out, err := m.Complete(context.Background(), ChatRequest{
		Model:    "gpt-4o",
		Messages: []ChatMessage{System("be terse"), User("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "gpt-4o", fc.lastReq.Model)
	require.Len(t, fc.lastReq.Messages, 2)
	assert.Equal(t, "system", fc.lastReq.Messages[0].Role)
}

func TestFakeEmbedding_ReturnsVectors(t *testing.T) {
	fe := &fakeEmbedding{vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}}}
	var m EmbeddingModel = fe

	vecs, err := m.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, float32(0.1), vecs[0][0])
}
