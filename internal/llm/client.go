// Package llm provides the chat-completion capability the relationship
// classifier's first tier runs on. One interface, one implementation per
// provider, selected at configuration time.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is a minimal chat-completion capability: one prompt in, raw text out
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a chat backend
type Config struct {
	Provider string // openai, anthropic, ollama
	Model    string // empty = provider default
	APIKey   string
	BaseURL  string // ollama only
}

// New builds the configured client. Returns (nil, nil) when no provider is
// configured — the classifier treats a nil client as "heuristic only".
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
