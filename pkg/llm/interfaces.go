// Package llm provides the chat-completion clients used to turn a question
// into a structured intent. The clients only ever see the anonymized catalog
// summary and the user's question.
package llm

import (
	"context"
)

// LLMClient is a single-turn chat completion client.
type LLMClient interface {
	// GenerateResponse sends one system message and one user prompt and
	// returns the model's reply.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// GenerateResponseResult is a completion with its token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

var (
	_ LLMClient = (*OpenAIClient)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*MockLLMClient)(nil)
)
