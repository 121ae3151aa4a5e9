// Package embedding turns event text into fixed-length vectors via a
// configurable backend. Each provider/model pair has a statically known
// dimension; vectors from different pairs are never comparable.
package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the capability the engine needs from an embedding backend
type Provider interface {
	// Embed returns a vector of exactly Dimension() floats
	Embed(ctx context.Context, text string) ([]float64, error)
	Name() string
	Model() string
	Dimension() int
}

// AuthError indicates the provider has no usable credential configured
type AuthError struct {
	Provider string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("embedding provider %s: no API key configured", e.Provider)
}

// RequestError wraps a transport or API failure from the provider
type RequestError struct {
	Provider string
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("embedding provider %s: request failed: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// modelDimensions holds the output dimension of every supported
// provider/model pair. Reported without a network call.
var modelDimensions = map[string]map[string]int{
	"openai": {
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	},
	"gemini": {
		"text-embedding-004": 768,
	},
	"ollama": {
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
	},
	"local": {
		"hash-v1": LocalDimension,
	},
}

func dimensionFor(provider, model string) (int, error) {
	models, ok := modelDimensions[provider]
	if !ok {
		return 0, fmt.Errorf("unknown embedding provider %q", provider)
	}
	dim, ok := models[model]
	if !ok {
		return 0, fmt.Errorf("unknown model %q for embedding provider %s", model, provider)
	}
	return dim, nil
}

// Config selects and configures an embedding backend
type Config struct {
	Provider string // openai, gemini, ollama, local
	Model    string // empty = provider default
	APIKey   string
	BaseURL  string // ollama only
}

// New builds the configured provider. Unknown provider/model combinations
// fail here, not at embed time.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model)
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case "local", "":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
