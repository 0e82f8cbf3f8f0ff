package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

func TestRegistered(t *testing.T) {
	assert.True(t, datasource.IsRegistered("postgres"))
}

func TestNewExecutor_RejectsMalformedDSN(t *testing.T) {
	_, err := NewExecutor(context.Background(), datasource.Config{DSN: "host=localhost port=notaport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres connection string")
}

func TestPgTypeNameFromOID(t *testing.T) {
	assert.Equal(t, "NUMERIC", pgTypeNameFromOID(1700))
	assert.Equal(t, "TEXT", pgTypeNameFromOID(25))
	assert.Equal(t, "OID_9999", pgTypeNameFromOID(9999))
}
