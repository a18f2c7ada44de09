package chat

import (
	"context"
	"fmt"

	"github.com/phoenixlabs/phoenix/internal/config"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for an LLM call
type LLMRequest struct {
	Model        string
	Messages     []Message
	Tools        []interface{}
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from the LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCallRequest
	Usage     *TokenUsage
}

// NewProvider creates an LLM provider from the AI configuration
func NewProvider(cfg config.AIConfig) (LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIKey), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.AnthropicKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
