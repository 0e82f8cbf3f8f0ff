package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", "production")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("", "local")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("loud", "local")
	assert.Error(t, err)
}

func TestSanitizeQuery_RedactsLiterals(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`SELECT 1`, `SELECT 1`},
		{`WHERE "t"."brand" = 'Maggi'`, `WHERE "t"."brand" = '[REDACTED]'`},
		{`IN (N'GT', N'MT')`, `IN ('[REDACTED]', '[REDACTED]')`},
		{`= 'O''Brien'`, `= '[REDACTED]'`},
		{`>= DATE '2024-01-01'`, `>= DATE '[REDACTED]'`},
		{`= $1`, `= $1`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeQuery(tt.in), tt.in)
	}
}
