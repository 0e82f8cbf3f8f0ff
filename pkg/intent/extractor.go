// Package intent turns a natural-language question into a SemanticQuery. The
// extractor only ever sees the anonymized catalog summary.
package intent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/prompts"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
)

// Extractor maps a question over an anonymized catalog to an intent whose
// identifiers are tokens from that catalog.
type Extractor interface {
	Extract(ctx context.Context, question string, summary *anonymizer.AnonymizedCatalog) (*models.SemanticQuery, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, question string, summary *anonymizer.AnonymizedCatalog) (*models.SemanticQuery, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, question string, summary *anonymizer.AnonymizedCatalog) (*models.SemanticQuery, error) {
	return f(ctx, question, summary)
}

// Options configures an LLMExtractor.
type Options struct {
	Temperature float64
	Timeout     time.Duration // per attempt; 0 means the caller's deadline only
	Retry       *retry.Config
	Breaker     llm.CircuitBreakerConfig
}

// LLMExtractor asks a language model for the intent.
type LLMExtractor struct {
	client  llm.LLMClient
	opts    Options
	breaker *llm.CircuitBreaker
	logger  *zap.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor creates an extractor around client.
func NewLLMExtractor(client llm.LLMClient, opts Options, logger *zap.Logger) *LLMExtractor {
	if opts.Retry == nil {
		opts.Retry = retry.LLMConfig()
	}
	return &LLMExtractor{
		client:  client,
		opts:    opts,
		breaker: llm.NewCircuitBreaker(opts.Breaker),
		logger:  logger.Named("intent"),
	}
}

// Extract sends the question and summary to the model and parses its answer.
// Transient model failures and malformed output are retried. Output that is
// still unusable after the retries is an invalid intent.
func (e *LLMExtractor) Extract(ctx context.Context, question string, summary *anonymizer.AnonymizedCatalog) (*models.SemanticQuery, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperrors.New(apperrors.KindInvalidIntent, "question", "", "question is empty")
	}
	if err := e.breaker.Allow(); err != nil {
		return nil, err
	}

	prompt := prompts.BuildIntentPrompt(summary, question)
	attempts := 0

	q, err := retry.DoIfRetryableWithResult(ctx, e.opts.Retry, func() (*models.SemanticQuery, error) {
		attempts++
		return e.attempt(ctx, prompt)
	})
	e.breaker.Record(outageOnly(err))

	if err != nil {
		e.logger.Warn("Intent extraction failed",
			zap.String("model", e.client.GetModel()),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if llm.GetErrorType(err) == llm.ErrorTypeResponse {
			return nil, apperrors.New(apperrors.KindInvalidIntent, "", "", "extractor returned unusable output: %v", err)
		}
		return nil, err
	}

	e.logger.Debug("Intent extracted",
		zap.String("intent_kind", string(q.Intent)),
		zap.Int("attempts", attempts))
	return q, nil
}

func (e *LLMExtractor) attempt(ctx context.Context, prompt string) (*models.SemanticQuery, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	res, err := e.client.GenerateResponse(ctx, prompt, prompts.IntentSystemPrompt, e.opts.Temperature)
	if err != nil {
		return nil, err
	}

	doc, err := llm.ExtractJSON(res.Content)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeResponse, "no JSON in response", true, err)
	}
	q, err := models.ParseSemanticQuery([]byte(doc))
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeResponse, "malformed intent", true, err)
	}
	return q, nil
}

// outageOnly keeps failures that say nothing about the endpoint's health out
// of the circuit breaker.
func outageOnly(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	switch llm.GetErrorType(err) {
	case llm.ErrorTypeResponse, llm.ErrorTypeModel:
		return nil
	}
	return err
}
