package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config selects the model an intent extractor talks to.
type Config struct {
	Endpoint  string // base URL of an OpenAI-compatible API, or the Anthropic API
	Model     string
	APIKey    string // empty for local servers
	MaxTokens int    // completion budget; 0 leaves it to the server (OpenAI) or 1024 (Anthropic)
}

// OpenAIClient completes intent prompts against any OpenAI-compatible chat
// endpoint. Replies are requested as a single JSON object.
type OpenAIClient struct {
	api       *openai.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAIClient creates a client for cfg. Endpoint and model are required.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, errors.New("llm: openai provider needs an endpoint and a model")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIClient{
		api:       openai.NewClientWithConfig(apiCfg),
		endpoint:  apiCfg.BaseURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse sends the system and user message and returns the first
// choice. A reply cut off by the token budget is a non-retryable response
// error: the same budget would cut it off again.
func (c *OpenAIClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    float32(temperature),
		MaxTokens:      c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	elapsed := time.Since(started)
	if err != nil {
		c.logger.Warn("Intent completion failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model, llmErr.Endpoint = c.model, c.endpoint
		return nil, llmErr
	}

	if len(resp.Choices) == 0 {
		return nil, NewErrorWithContext(ErrorTypeResponse, "completion has no choices", true, nil, c.model, c.endpoint, 0)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return nil, NewErrorWithContext(ErrorTypeResponse, "completion truncated at max_tokens", false, nil, c.model, c.endpoint, 0)
	}

	c.logger.Debug("Intent completion",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResponseResult{
		Content:          choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// GetModel returns the model name.
func (c *OpenAIClient) GetModel() string { return c.model }

// GetEndpoint returns the base URL without a trailing slash.
func (c *OpenAIClient) GetEndpoint() string { return c.endpoint }
