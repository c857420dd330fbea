package llm

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// NewClientWithLogger builds the Client backing provider ("anthropic"
// or "openai", case-insensitive; empty defaults to anthropic). The
// caller is expected to pass config.Config.LLMProvider — this package
// itself never reads the environment for provider selection, so there
// is exactly one place (config.FromEnv) that decides it.
func NewClientWithLogger(provider string, logger zerolog.Logger) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "anthropic":
		return NewAnthropicWithLogger(logger)
	case "openai":
		return NewOpenAIWithLogger(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic' or 'openai')", provider)
	}
}
