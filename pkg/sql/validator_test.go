package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple select", input: "SELECT 1", expected: "SELECT 1"},
		{name: "trailing semicolon", input: "SELECT 1;", expected: "SELECT 1"},
		{name: "trailing semicolon and whitespace", input: "SELECT 1;  \n", expected: "SELECT 1"},
		{name: "leading whitespace", input: "  select 1  ", expected: "select 1"},
		{
			name:     "semicolon inside literal",
			input:    "SELECT * FROM t WHERE name = 'a;b';",
			expected: "SELECT * FROM t WHERE name = 'a;b'",
		},
		{
			name:     "semicolon inside double quoted identifier",
			input:    `SELECT * FROM "client_nestle"."odd;name"`,
			expected: `SELECT * FROM "client_nestle"."odd;name"`,
		},
		{
			name:     "semicolon inside bracket identifier",
			input:    "SELECT TOP (5) [x;y] FROM [client_itc].[fact_trade_sales]",
			expected: "SELECT TOP (5) [x;y] FROM [client_itc].[fact_trade_sales]",
		},
		{
			name:     "doubled quote in literal",
			input:    "SELECT * FROM t WHERE name = N'O''Brien'",
			expected: "SELECT * FROM t WHERE name = N'O''Brien'",
		},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			assert.NoError(t, result.Error)
			assert.Equal(t, tt.expected, result.NormalizedSQL)
		})
	}
}

func TestValidateAndNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "two statements", input: "SELECT 1; SELECT 2", want: ErrMultipleStatements},
		{name: "stacked delete", input: "SELECT * FROM t WHERE a = 'x'; DELETE FROM t", want: ErrMultipleStatements},
		{name: "semicolon after closed literal", input: "SELECT 'a''b'; DROP TABLE t", want: ErrMultipleStatements},
		{name: "not a select", input: "DELETE FROM t", want: ErrNotSelect},
		{name: "with clause", input: "WITH x AS (SELECT 1) SELECT * FROM x", want: ErrNotSelect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			assert.ErrorIs(t, result.Error, tt.want)
			assert.Empty(t, result.NormalizedSQL)
		})
	}
}
