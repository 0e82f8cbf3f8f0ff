package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"intent_kind":"ranking"}`,
			want:     `{"intent_kind":"ranking"}`,
		},
		{
			name:     "markdown fence",
			response: "```json\n{\"intent_kind\": \"trend\"}\n```",
			want:     `{"intent_kind": "trend"}`,
		},
		{
			name:     "reasoning block first",
			response: "<think>the user wants {a ranking}</think>\n{\"intent_kind\":\"ranking\"}",
			want:     `{"intent_kind":"ranking"}`,
		},
		{
			name:     "prose around object",
			response: `Here is the query: {"primary_metric":"m_1","limit":5} Let me know.`,
			want:     `{"primary_metric":"m_1","limit":5}`,
		},
		{
			name:     "braces inside strings",
			response: `{"filters":[{"dimension":"d_1","value":"a}b{c"}]}`,
			want:     `{"filters":[{"dimension":"d_1","value":"a}b{c"}]}`,
		},
		{
			name:     "stray brace before object",
			response: `Use {braces} carefully. {"intent_kind":"aggregate"}`,
			want:     `{"intent_kind":"aggregate"}`,
		},
		{
			name:     "first of two objects",
			response: `{"a":1} {"b":2}`,
			want:     `{"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	for _, response := range []string{
		"",
		"I cannot answer that.",
		`["an", "array"]`,
		`{"unterminated": true`,
		"<think>{\"hidden\": true}</think> nothing here",
	} {
		_, err := ExtractJSON(response)
		assert.ErrorIs(t, err, ErrNoJSON, response)
	}
}
