// Package llm adapts hosted and local language models to the judge contract.
package llm

import (
	"context"
	"time"

	"github.com/ppiankov/fabula/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the model's text answer
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single-turn prompt
type CompletionRequest struct {
	Prompt string

	// System is an optional system instruction
	System string

	// Model overrides the configured model when set
	Model string

	// MaxTokens limits the response length; zero uses the configured value
	MaxTokens int
}

// CompletionResponse is the model's answer
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for sampling; judges run at zero
	Temperature float64

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns the judge defaults
func DefaultConfig() Config {
	return ConfigFromModel(model.DefaultConfig().Judge, model.HTTPConfig{})
}

// ConfigFromModel converts the judge and HTTP configuration sections to llm.Config
func ConfigFromModel(judge model.JudgeConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:    judge.Provider,
		Model:       judge.Model,
		APIKey:      judge.APIKey,
		BaseURL:     judge.BaseURL,
		Timeout:     judge.Timeout,
		MaxTokens:   judge.MaxTokens,
		Temperature: judge.Temperature,
		HTTPProxy:   httpCfg.HTTPProxy,
		HTTPSProxy:  httpCfg.HTTPSProxy,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 50
}

func (c Config) model(req CompletionRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}
