package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://idp.example.com"

// jwksServer publishes key's public half as a one-key JWKS.
func jwksServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func tenantClaims(iss, aud, tenant string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    iss,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenant,
		Role:     "asm",
		Scope:    Scope{"asm_code": {"A7"}},
	}
}

func TestNewJWKSValidator_NeedsEndpoints(t *testing.T) {
	_, err := NewJWKSValidator(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestJWKSValidator_VerifiesTenantToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := jwksServer(t, key)

	v, err := NewJWKSValidator(context.Background(), map[string]string{testIssuer: server.URL}, "insights")
	require.NoError(t, err)

	claims, err := v.ValidateToken(signRS256(t, key, tenantClaims(testIssuer, "insights", "itc")))
	require.NoError(t, err)
	assert.Equal(t, "itc", claims.TenantID)
	assert.Equal(t, []string{"A7"}, claims.Scope["asm_code"])
}

func TestJWKSValidator_Rejections(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := jwksServer(t, key)

	v, err := NewJWKSValidator(context.Background(), map[string]string{testIssuer: server.URL}, "insights")
	require.NoError(t, err)

	expired := tenantClaims(testIssuer, "insights", "itc")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tenantClaims(testIssuer, "insights", "itc")).
		SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	unsigned := func() string {
		header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
		payload, _ := json.Marshal(tenantClaims(testIssuer, "insights", "nestle"))
		return base64.RawURLEncoding.EncodeToString(header) + "." +
			base64.RawURLEncoding.EncodeToString(payload) + "."
	}()

	tests := map[string]string{
		"untrusted issuer": signRS256(t, key, tenantClaims("https://evil.example.com", "insights", "itc")),
		"wrong audience":   signRS256(t, key, tenantClaims(testIssuer, "someone-else", "itc")),
		"expired":          signRS256(t, key, expired),
		"foreign key":      signRS256(t, other, tenantClaims(testIssuer, "insights", "itc")),
		"symmetric method": hs256,
		"unsigned":         unsigned,
		"not a token":      "garbage",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}
