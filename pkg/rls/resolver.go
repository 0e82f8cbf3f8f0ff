// Package rls turns an authenticated principal into the row-level
// constraints every one of their queries must carry.
package rls

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// Policy is the resolved row-level policy of one principal for one request.
type Policy struct {
	Role         string
	Unrestricted bool
	Constraints  []models.Constraint
}

// Resolver computes policies from the tenant catalog's access policy. It
// holds no state; every request resolves afresh so that role or scope
// changes take effect immediately.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve computes the constraints for p. It fails closed: an unknown role,
// a missing required scope or a scope naming an unknown dimension all deny
// access rather than yielding an empty constraint set.
func (r *Resolver) Resolve(cat *catalog.Catalog, p *models.Principal) (*Policy, error) {
	if p == nil {
		return nil, apperrors.New(apperrors.KindAccessDenied, "", "", "no principal")
	}
	if p.TenantID != cat.TenantID() {
		return nil, apperrors.New(apperrors.KindAccessDenied, "", p.TenantID,
			"principal belongs to tenant %q", p.TenantID)
	}

	role := strings.ToLower(strings.TrimSpace(p.Role))
	access := cat.AccessPolicy()
	if access.IsUnrestricted(role) {
		return &Policy{Role: role, Unrestricted: true}, nil
	}

	rule, ok := access.Rule(role)
	if !ok {
		return nil, apperrors.New(apperrors.KindAccessDenied, "role", p.Role, "role %q has no access policy", p.Role)
	}

	for _, dim := range rule.ScopeDimensions {
		if len(nonEmpty(p.Scope[dim])) == 0 {
			return nil, apperrors.New(apperrors.KindAccessDenied, "scope", dim,
				"role %q requires a %s scope", role, dim)
		}
	}

	policy := &Policy{Role: role}
	for _, dim := range p.ScopeDimensions() {
		if !cat.HasDimension(dim) {
			return nil, apperrors.New(apperrors.KindUnknownDimension, "scope", dim,
				"scope attribute %q is not a dimension of the %s catalog", dim, cat.TenantID())
		}
		values := nonEmpty(p.Scope[dim])
		if len(values) == 0 {
			return nil, apperrors.New(apperrors.KindAccessDenied, "scope", dim, "scope attribute %q has no values", dim)
		}
		policy.Constraints = append(policy.Constraints, models.Constraint{Dimension: dim, Values: values})
	}
	return policy, nil
}

// nonEmpty returns the distinct non-blank values in input order.
func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Apply attaches the policy's constraints to a validated query. User filters
// are never removed or rewritten; a constraint on a dimension the user also
// filters is added next to it and both must hold.
func (p *Policy) Apply(q *models.SemanticQuery) *models.ScopedQuery {
	sq := &models.ScopedQuery{Query: q.Clone()}
	if p.Unrestricted {
		return sq
	}
	sq.Constraints = make([]models.Constraint, len(p.Constraints))
	for i, c := range p.Constraints {
		sq.Constraints[i] = models.Constraint{Dimension: c.Dimension, Values: slices.Clone(c.Values)}
	}
	return sq
}

func (p *Policy) String() string {
	if p.Unrestricted {
		return fmt.Sprintf("%s: unrestricted", p.Role)
	}
	parts := make([]string, len(p.Constraints))
	for i, c := range p.Constraints {
		parts[i] = fmt.Sprintf("%s in (%s)", c.Dimension, strings.Join(c.Values, ", "))
	}
	return fmt.Sprintf("%s: %s", p.Role, strings.Join(parts, " and "))
}
