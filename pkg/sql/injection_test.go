package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValueForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           string
		expectInjection bool
	}{
		// Values analysts actually filter on
		{name: "state name", value: "Karnataka"},
		{name: "brand with space", value: "Nescafe Classic"},
		{name: "date", value: "2024-01-15"},
		{name: "number", value: "12345"},
		{name: "apostrophe in name", value: "O'Brien"},
		{name: "empty", value: ""},
		{name: "natural language with keyword", value: "SELECT the best option from the menu"},

		// Tampered extractor output
		{name: "classic quote injection", value: "' OR '1'='1", expectInjection: true},
		{name: "drop table", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
		{name: "comment", value: "admin'--", expectInjection: true},
		{name: "boolean blind", value: "1' AND '1'='1", expectInjection: true},
		{name: "stacked", value: "admin'; DELETE FROM logs; --", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckValueForInjection("filters[0].values[0]", "state_name", tt.value)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, "filters[0].values[0]", result.Field)
			assert.Equal(t, "state_name", result.Dimension)
			assert.Equal(t, tt.value, result.Value)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}
