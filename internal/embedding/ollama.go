package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaProvider embeds text via a local Ollama server
type OllamaProvider struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// NewOllamaProvider creates an Ollama embedding backend. Model defaults to
// nomic-embed-text. No credential needed; the server just has to be running.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	dim, err := dimensionFor("ollama", model)
	if err != nil {
		return nil, err
	}
	return &OllamaProvider{
		baseURL:   baseURL,
		model:     model,
		dimension: dim,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

func (p *OllamaProvider) Name() string   { return "ollama" }
func (p *OllamaProvider) Model() string  { return p.model }
func (p *OllamaProvider) Dimension() int { return p.dimension }

// embeddingRequest is the Ollama API request format
type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embeddingResponse is the Ollama API response format
type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding for the given text
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, &RequestError{Provider: "ollama", Err: fmt.Errorf("empty text")}
	}

	reqBody := embeddingRequest{
		Model:  p.model,
		Prompt: text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &RequestError{Provider: "ollama", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &RequestError{Provider: "ollama", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RequestError{Provider: "ollama", Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &RequestError{Provider: "ollama", Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(result.Embedding) != p.dimension {
		return nil, &RequestError{Provider: "ollama", Err: fmt.Errorf("expected %d dims, got %d", p.dimension, len(result.Embedding))}
	}
	return result.Embedding, nil
}
