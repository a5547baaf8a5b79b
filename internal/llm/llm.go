// Package llm defines the chat-completion and embedding contracts consumed
// by the tool layer and the retrieval adapter, and an OpenAI-backed
// implementation of both. It collapses the teacher's generic
// model.Model[Request, Response] interfaces into two concrete, narrow
// interfaces sized for this engine's needs: a single prompt-in/text-out
// chat call and a batch embedding call.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ChatMessage mirrors the teacher's system/user message split without the
// media/multi-part machinery this engine never exercises.
type ChatMessage struct {
	Role string // "system" or "user"
	Text string
}

func System(text string) ChatMessage { return ChatMessage{Role: "system", Text: text} }
func User(text string) ChatMessage   { return ChatMessage{Role: "user", Text: text} }

// ChatRequest is one chat-completion call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature *float64
	MaxTokens   *int64
}

// ChatModel is the outbound LLM interface required by spec §6.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// EmbeddingModel is the outbound embeddings interface used by the retrieval
// adapter to vectorize queries (spec §4.2).
type EmbeddingModel interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// ErrEmptyResponse is wrapped and returned when the provider returns a
// completion with no content (spec §7, ErrLLMEmptyResponse origin).
var ErrEmptyResponse = errors.New("llm: empty completion response")

// OpenAIChat is a ChatModel backed by the OpenAI chat completions API.
type OpenAIChat struct {
	client *openai.Client
}

// NewOpenAIChat builds a chat client. apiKey may be empty to rely on the
// OPENAI_API_KEY environment variable, matching the SDK's own default.
func NewOpenAIChat(apiKey string, opts ...option.RequestOption) *OpenAIChat {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c := openai.NewClient(opts...)
	return &OpenAIChat{client: &c}
}

func (m *OpenAIChat) Complete(ctx context.Context, req ChatRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Text))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Text))
		}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(*req.MaxTokens)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedding is an EmbeddingModel backed by the OpenAI embeddings API.
type OpenAIEmbedding struct {
	client *openai.Client
}

func NewOpenAIEmbedding(apiKey string, opts ...option.RequestOption) *OpenAIEmbedding {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c := openai.NewClient(opts...)
	return &OpenAIEmbedding{client: &c}
}

func (m *OpenAIEmbedding) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	}

	resp, err := m.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm: embeddings call failed: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}
