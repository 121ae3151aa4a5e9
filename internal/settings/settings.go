// Package settings loads the journal's engine configuration from a YAML
// file. Credentials never live in the file; they come from the environment.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EmbeddingSettings selects the embedding backend
type EmbeddingSettings struct {
	Provider string `yaml:"provider"` // openai, gemini, ollama, local
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"` // ollama only
}

// ClassifierSettings selects the chat backend for relationship
// classification. Empty provider means heuristic-only.
type ClassifierSettings struct {
	Provider string `yaml:"provider"` // openai, anthropic, ollama
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"` // ollama only
}

// Settings is the engine configuration, read-only to the engine itself
type Settings struct {
	SimilarityThreshold float64            `yaml:"similarity_threshold"`
	AutoEmbedOnCreate   bool               `yaml:"auto_embed_on_create"`
	Embedding           EmbeddingSettings  `yaml:"embedding"`
	Classifier          ClassifierSettings `yaml:"classifier"`
}

// Default returns the settings used when no file exists: offline placeholder
// embeddings and heuristic-only classification, so a fresh install works
// without any credentials.
func Default() *Settings {
	return &Settings{
		SimilarityThreshold: 0.7,
		AutoEmbedOnCreate:   true,
		Embedding:           EmbeddingSettings{Provider: "local"},
	}
}

// Load reads settings from path, falling back to defaults when the file is
// absent. A malformed file is an error, not a silent default.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity_threshold %v out of range [-1, 1]", s.SimilarityThreshold)
	}
	return s, nil
}

// Save writes settings to path
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
