// Package testhelpers provides utilities for testing ekaya-insights components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
)

// TestHMACSecret is long enough for auth.NewHMACValidator.
const TestHMACSecret = "test-secret-that-is-at-least-32-bytes-long"

// TestIssuer is the issuer SignedToken stamps on its tokens.
const TestIssuer = "ekaya-insights-test"

// TestClaims builds claims for a tenant user with the given scope.
func TestClaims(sub, tenant, role string, scope map[string][]string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
		TenantID:         tenant,
		Role:             role,
		Scope:            auth.Scope(scope),
	}
}

// SignedToken returns an HS256 token for claims, signed with TestHMACSecret.
func SignedToken(t *testing.T, claims *auth.Claims) string {
	t.Helper()

	v, err := auth.NewHMACValidator(TestHMACSecret, TestIssuer)
	if err != nil {
		t.Fatalf("create HMAC validator: %v", err)
	}
	token, err := v.Sign(claims, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// UnsignedToken forges an alg=none token for claims. No validator accepts
// it; tests use it to show that.
func UnsignedToken(claims *auth.Claims) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, _ := json.Marshal(claims)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}
