// Package auth authenticates callers with JWTs and turns their claims into
// the principal the query pipeline scopes rows by.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-insights/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// PrincipalKey is the context key for storing the derived principal.
	PrincipalKey contextKey = "principal"
)

// Scope maps a catalog dimension to the values the caller may see. Issuers
// write single values as strings and several as arrays; both are accepted.
type Scope map[string][]string

// UnmarshalJSON accepts {"zsm_code": "Z1"} as well as {"zsm_code": ["Z1","Z2"]}.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Scope, len(raw))
	for dim, v := range raw {
		values, err := jsonutil.FlexibleStringList(v)
		if err != nil {
			return fmt.Errorf("scope %q: %w", dim, err)
		}
		out[dim] = values
	}
	*s = out
	return nil
}

// Claims is the token payload. It embeds RegisteredClaims for the standard
// fields (sub, iss, exp, ...) and adds the tenant and access scope.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tid,omitempty"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	Scope    Scope  `json:"scope,omitempty"`
}

// Principal converts the claims into the pipeline's view of the caller.
func (c *Claims) Principal() (*models.Principal, error) {
	if c.TenantID == "" {
		return nil, ErrMissingTenant
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("missing subject in token")
	}
	p := &models.Principal{
		TenantID: strings.ToLower(c.TenantID),
		UserID:   c.Subject,
		Role:     strings.ToLower(strings.TrimSpace(c.Role)),
	}
	if len(c.Scope) > 0 {
		p.Scope = make(map[string][]string, len(c.Scope))
		for dim, values := range c.Scope {
			p.Scope[dim] = append([]string(nil), values...)
		}
	}
	return p, nil
}

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetPrincipal retrieves the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*models.Principal)
	return p, ok && p != nil
}

// WithPrincipal returns a context carrying claims and their principal.
func WithPrincipal(ctx context.Context, claims *Claims, p *models.Principal) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, PrincipalKey, p)
}
