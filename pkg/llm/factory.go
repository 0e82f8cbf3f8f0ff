package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Provider names accepted by NewClientForProvider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClientForProvider creates the client for a configured provider.
// "openai" covers every OpenAI-compatible endpoint, including local servers.
func NewClientForProvider(provider string, cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI, "openai-compatible", "":
		return NewOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported LLM provider %q", provider)
}
