package rls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func loadNestle(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadFile("nestle", "../../catalogs/nestle.yaml")
	require.NoError(t, err)
	return cat
}

func TestResolve_UnrestrictedRoles(t *testing.T) {
	cat := loadNestle(t)
	for _, role := range []string{"admin", "Analyst", "NSM"} {
		policy, err := NewResolver().Resolve(cat, &models.Principal{TenantID: "nestle", Role: role})
		require.NoError(t, err, role)
		assert.True(t, policy.Unrestricted)
		assert.Empty(t, policy.Constraints)
	}
}

func TestResolve_ScopedRole(t *testing.T) {
	cat := loadNestle(t)
	p := &models.Principal{
		TenantID: "nestle",
		UserID:   "u-17",
		Role:     "territory_manager",
		Scope:    map[string][]string{"territory": {"Z1"}},
	}

	policy, err := NewResolver().Resolve(cat, p)
	require.NoError(t, err)
	assert.False(t, policy.Unrestricted)
	assert.Equal(t, []models.Constraint{{Dimension: "territory", Values: []string{"Z1"}}}, policy.Constraints)
	assert.Equal(t, "territory_manager: territory in (Z1)", policy.String())
}

func TestResolve_ExtraScopeAttributesAlsoConstrain(t *testing.T) {
	cat := loadNestle(t)
	p := &models.Principal{
		TenantID: "nestle",
		Role:     "asm",
		Scope: map[string][]string{
			"asm_code":   {"ASM-04", "", "ASM-04"},
			"state_name": {"Karnataka"},
		},
	}

	policy, err := NewResolver().Resolve(cat, p)
	require.NoError(t, err)
	assert.Equal(t, []models.Constraint{
		{Dimension: "asm_code", Values: []string{"ASM-04"}},
		{Dimension: "state_name", Values: []string{"Karnataka"}},
	}, policy.Constraints)
}

func TestResolve_FailsClosed(t *testing.T) {
	cat := loadNestle(t)

	tests := []struct {
		name string
		p    *models.Principal
		want error
	}{
		{"nil principal", nil, apperrors.ErrAccessDenied},
		{"other tenant", &models.Principal{TenantID: "itc", Role: "admin"}, apperrors.ErrAccessDenied},
		{"unknown role", &models.Principal{TenantID: "nestle", Role: "intern"}, apperrors.ErrAccessDenied},
		{"empty role", &models.Principal{TenantID: "nestle"}, apperrors.ErrAccessDenied},
		{"missing scope", &models.Principal{TenantID: "nestle", Role: "so"}, apperrors.ErrAccessDenied},
		{
			"blank scope values",
			&models.Principal{TenantID: "nestle", Role: "so", Scope: map[string][]string{"so_code": {" "}}},
			apperrors.ErrAccessDenied,
		},
		{
			"wrong scope dimension",
			&models.Principal{TenantID: "nestle", Role: "zsm", Scope: map[string][]string{"asm_code": {"A1"}}},
			apperrors.ErrAccessDenied,
		},
		{
			"scope on unknown dimension",
			&models.Principal{TenantID: "nestle", Role: "zsm", Scope: map[string][]string{
				"zsm_code": {"Z-1"},
				"planet":   {"earth"},
			}},
			apperrors.ErrUnknownDimension,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewResolver().Resolve(cat, tt.p)
			assert.Nil(t, policy)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPolicy_ApplyKeepsUserFilters(t *testing.T) {
	cat := loadNestle(t)
	policy, err := NewResolver().Resolve(cat, &models.Principal{
		TenantID: "nestle",
		Role:     "territory_manager",
		Scope:    map[string][]string{"territory": {"Z1"}},
	})
	require.NoError(t, err)

	q := &models.SemanticQuery{
		PrimaryMetric: "secondary_sales_value",
		Filters:       []models.Filter{{Dimension: "territory", Operator: models.OpEq, Values: []string{"Z2"}}},
	}
	scoped := policy.Apply(q)

	assert.Equal(t, q.Filters, scoped.Query.Filters, "user filter kept as requested")
	assert.Equal(t, []models.Constraint{{Dimension: "territory", Values: []string{"Z1"}}}, scoped.Constraints)

	scoped.Constraints[0].Values[0] = "tampered"
	assert.Equal(t, "Z1", policy.Constraints[0].Values[0])
}

func TestPolicy_ApplyUnrestricted(t *testing.T) {
	policy := &Policy{Role: "admin", Unrestricted: true}
	scoped := policy.Apply(&models.SemanticQuery{PrimaryMetric: "m"})
	assert.Empty(t, scoped.Constraints)
	assert.Equal(t, "m", scoped.Query.PrimaryMetric)
}
