package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoProvider is returned when no judge provider is configured
var ErrNoProvider = errors.New("no LLM provider configured")

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, ErrNoProvider

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// Key identifies a provider and model pair, e.g. "openai/gpt-4o-mini".
// The judge caller uses it as rate-gate bucket and cache namespace.
func Key(config Config) string {
	return strings.ToLower(config.Provider) + "/" + config.Model
}
