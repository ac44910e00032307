package llm

import (
	"fmt"

	"macro-meal-engine/internal/config"
)

// Generator is a TextGenerator that owns closable resources.
type Generator interface {
	TextGenerator
	Closer
}

// NewFromConfig returns the text generator selected by cfg.LLMProvider.
func NewFromConfig(cfg *config.Config) (Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg), nil
	case config.ProviderGroq:
		return NewGroqClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// Close is a no-op; the Groq client holds no long-lived resources.
func (c *GroqClient) Close() error { return nil }
