package auth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_UnmarshalScope(t *testing.T) {
	payload := `{"sub":"u-1","tid":"Nestle","role":" ZSM ","scope":{"zsm_code":"Z1","territory":["North","East"],"region_name":7}}`

	var claims Claims
	require.NoError(t, json.Unmarshal([]byte(payload), &claims))

	assert.Equal(t, Scope{
		"zsm_code":    {"Z1"},
		"territory":   {"North", "East"},
		"region_name": {"7"},
	}, claims.Scope)

	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, "nestle", p.TenantID)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "zsm", p.Role)
	assert.Equal(t, []string{"North", "East"}, p.Scope["territory"])
}

func TestClaims_ScopeRejectsObjects(t *testing.T) {
	var claims Claims
	err := json.Unmarshal([]byte(`{"scope":{"zsm_code":{"in":["Z1"]}}}`), &claims)
	assert.Error(t, err)
}

func TestClaims_Principal_Errors(t *testing.T) {
	_, err := (&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}).Principal()
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = (&Claims{TenantID: "itc"}).Principal()
	assert.Error(t, err)
}

func TestClaims_PrincipalCopiesScope(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
		TenantID:         "itc",
		Scope:            Scope{"territory": {"T1"}},
	}
	p, err := claims.Principal()
	require.NoError(t, err)

	p.Scope["territory"][0] = "T9"
	assert.Equal(t, "T1", claims.Scope["territory"][0])
}

func TestContextHelpers(t *testing.T) {
	_, ok := GetPrincipal(context.Background())
	assert.False(t, ok)

	claims := &Claims{TenantID: "itc", RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}
	p, err := claims.Principal()
	require.NoError(t, err)

	ctx := WithPrincipal(context.Background(), claims, p)
	got, ok := GetPrincipal(ctx)
	require.True(t, ok)
	assert.Same(t, p, got)
	gotClaims, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, gotClaims)
}
