package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider embeds text via the OpenAI embeddings API
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider creates an OpenAI embedding backend. Model defaults to
// text-embedding-3-small.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, &AuthError{Provider: "openai"}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	dim, err := dimensionFor("openai", model)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{
		client:    openai.NewClient(apiKey),
		model:     model,
		dimension: dim,
	}, nil
}

func (p *OpenAIProvider) Name() string   { return "openai" }
func (p *OpenAIProvider) Model() string  { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed generates an embedding for the given text
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, &RequestError{Provider: "openai", Err: fmt.Errorf("empty text")}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, &RequestError{Provider: "openai", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &RequestError{Provider: "openai", Err: fmt.Errorf("no embedding data in response")}
	}

	vec := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float64(v)
	}
	if len(vec) != p.dimension {
		return nil, &RequestError{Provider: "openai", Err: fmt.Errorf("expected %d dims, got %d", p.dimension, len(vec))}
	}
	return vec, nil
}
