package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError_FromMessage(t *testing.T) {
	tests := []struct {
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{errors.New("invalid api key provided"), ErrorTypeAuth, false},
		{errors.New("the model `gpt-9` does not exist"), ErrorTypeModel, false},
		{errors.New("rate limit reached for requests"), ErrorTypeRateLimit, true},
		{errors.New("Overloaded"), ErrorTypeRateLimit, true},
		{errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{errors.New("something odd"), ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeResponse, "bad json", false, nil)
	wrapped := fmt.Errorf("extract: %w", orig)
	assert.Same(t, orig, ClassifyError(wrapped))
	assert.Nil(t, ClassifyError(nil))
}

func TestError_Error(t *testing.T) {
	err := NewErrorWithContext(ErrorTypeEndpoint, "server error", true, errors.New("boom"), "gpt-4o", "https://api.openai.com/v1", 503)
	assert.Equal(t, "endpoint HTTP 503 model=gpt-4o server error: boom", err.Error())
	assert.True(t, err.IsRetryable())
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrorTypeEndpoint, GetErrorType(err))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
