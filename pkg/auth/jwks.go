package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// asymmetricMethods are the algorithms identity providers sign with. HS*
// tokens are handled by HMACValidator and never accepted against a JWKS.
var asymmetricMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384"}

// JWKSValidator verifies tokens from identity providers that publish their
// keys as a JWKS. Each trusted issuer has its own key set, so a key from one
// issuer never validates a token claiming another.
type JWKSValidator struct {
	issuers  map[string]keyfunc.Keyfunc
	audience string
}

var _ TokenValidator = (*JWKSValidator)(nil)

// NewJWKSValidator fetches the key set of every issuer in endpoints
// (issuer URL to JWKS URL). It fails if any key set cannot be loaded.
// A non-empty audience must appear in every accepted token.
func NewJWKSValidator(ctx context.Context, endpoints map[string]string, audience string) (*JWKSValidator, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("auth: no JWKS endpoints configured")
	}
	v := &JWKSValidator{
		issuers:  make(map[string]keyfunc.Keyfunc, len(endpoints)),
		audience: audience,
	}
	for issuer, url := range endpoints {
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{url})
		if err != nil {
			return nil, fmt.Errorf("auth: load JWKS for issuer %s: %w", issuer, err)
		}
		v.issuers[issuer] = kf
	}
	return v, nil
}

// ValidateToken checks signature, expiry, issuer and audience.
func (v *JWKSValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(asymmetricMethods),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kf, ok := v.issuers[claims.Issuer]
		if !ok {
			return nil, fmt.Errorf("issuer %q is not trusted", claims.Issuer)
		}
		return kf.Keyfunc(token)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return claims, nil
}
