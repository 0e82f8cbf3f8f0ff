package models

import "sort"

// Principal is the authenticated caller as seen by the pipeline. Scope maps a
// catalog dimension identifier to the values the caller may see.
type Principal struct {
	TenantID string              `json:"tenant_id"`
	UserID   string              `json:"user_id"`
	Role     string              `json:"role"`
	Scope    map[string][]string `json:"scope,omitempty"`
}

// ScopeDimensions returns the scope keys in sorted order.
func (p *Principal) ScopeDimensions() []string {
	keys := make([]string, 0, len(p.Scope))
	for k := range p.Scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Constraint is one row-level restriction: Dimension must take one of Values.
type Constraint struct {
	Dimension string   `json:"dimension"`
	Values    []string `json:"values"`
}

// ScopedQuery is a validated intent with the row-level constraints of its
// caller attached. Only a ScopedQuery can be built into SQL.
type ScopedQuery struct {
	Query       *SemanticQuery
	Constraints []Constraint
}
