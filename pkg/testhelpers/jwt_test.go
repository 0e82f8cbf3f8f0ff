package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
)

func TestSignedToken_ValidatesWithSameSecret(t *testing.T) {
	token := SignedToken(t, TestClaims("u-1", "itc", "zsm", map[string][]string{"zone": {"Z1"}}))

	v, err := auth.NewHMACValidator(TestHMACSecret, TestIssuer)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "itc", claims.TenantID)
	assert.Equal(t, []string{"Z1"}, claims.Scope["zone"])
}

func TestUnsignedToken_IsRejected(t *testing.T) {
	token := UnsignedToken(TestClaims("u-2", "nestle", "admin", nil))
	assert.Equal(t, byte('.'), token[len(token)-1])

	v, err := auth.NewHMACValidator(TestHMACSecret, TestIssuer)
	require.NoError(t, err)
	_, err = v.ValidateToken(token)
	assert.Error(t, err)
}
