package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider embeds text via Google's Generative AI API
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiProvider creates a Gemini embedding backend. Model defaults to
// text-embedding-004.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, &AuthError{Provider: "gemini"}
	}
	if model == "" {
		model = "text-embedding-004"
	}
	dim, err := dimensionFor("gemini", model)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &RequestError{Provider: "gemini", Err: err}
	}
	return &GeminiProvider{client: client, model: model, dimension: dim}, nil
}

func (p *GeminiProvider) Name() string   { return "gemini" }
func (p *GeminiProvider) Model() string  { return p.model }
func (p *GeminiProvider) Dimension() int { return p.dimension }

// Embed generates an embedding for the given text
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, &RequestError{Provider: "gemini", Err: fmt.Errorf("empty text")}
	}

	em := p.client.EmbeddingModel(p.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &RequestError{Provider: "gemini", Err: err}
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, &RequestError{Provider: "gemini", Err: fmt.Errorf("no embedding values in response")}
	}

	vec := make([]float64, len(res.Embedding.Values))
	for i, v := range res.Embedding.Values {
		vec[i] = float64(v)
	}
	if len(vec) != p.dimension {
		return nil, &RequestError{Provider: "gemini", Err: fmt.Errorf("expected %d dims, got %d", p.dimension, len(vec))}
	}
	return vec, nil
}
