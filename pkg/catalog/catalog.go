// Package catalog holds a tenant's semantic catalog: the metrics and
// dimensions a question may refer to, the tables they live in and the
// tenant's row-level access policy. A Catalog is built once from a YAML
// document and never modified afterwards, so it is safe to share between
// concurrent requests.
package catalog

import (
	"slices"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// Category is a dimension's category tag. It drives metric compatibility,
// row-level scoping and anonymization hints.
type Category string

const (
	CategoryTime      Category = "time"
	CategoryProduct   Category = "product"
	CategoryGeography Category = "geography"
	CategoryCustomer  Category = "customer"
	CategoryChannel   Category = "channel"
	CategorySales     Category = "sales"
	CategoryAttribute Category = "attribute"
)

var knownCategories = []Category{
	CategoryTime, CategoryProduct, CategoryGeography, CategoryCustomer,
	CategoryChannel, CategorySales, CategoryAttribute,
}

// DataType is the declared type of a dimension's values.
type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeNumber  DataType = "number"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
)

// Format is the display hint of a metric.
type Format string

const (
	FormatCurrency Format = "currency"
	FormatNumber   Format = "number"
	FormatPercent  Format = "percent"
)

// TableKind distinguishes fact tables (which metrics aggregate) from
// dimension tables (which are joined in).
type TableKind string

const (
	TableFact      TableKind = "fact"
	TableDimension TableKind = "dimension"
)

// Table is a physical table in the tenant schema.
type Table struct {
	Name    string
	Kind    TableKind
	Columns []string // empty when the document does not enumerate columns
}

// HasColumn reports whether the column is known. Tables without a column
// list accept every column.
func (t Table) HasColumn(col string) bool {
	if len(t.Columns) == 0 {
		return true
	}
	return slices.Contains(t.Columns, col)
}

// Metric is an aggregable measure over one fact table.
type Metric struct {
	ID                  string
	Description         string
	Table               string
	Aggregation         Aggregation
	Expression          string // aggregation as written in the document
	Format              Format
	Category            string // explicit anonymization category, may be empty
	DimensionCategories []Category
	TimeColumn          string
}

// AllowsCategory reports whether the metric may be grouped or filtered by a
// dimension of the given category.
func (m Metric) AllowsCategory(c Category) bool {
	return slices.Contains(m.DimensionCategories, c)
}

// clone copies the metric so callers cannot reach the catalog's slices.
func (m Metric) clone() Metric {
	m.DimensionCategories = slices.Clone(m.DimensionCategories)
	if m.Aggregation.Denominator != nil {
		d := *m.Aggregation.Denominator
		m.Aggregation.Denominator = &d
	}
	return m
}

// Dimension is a grouping attribute. When it lives outside the fact table it
// is reached by joining fact.FactKey = Table.JoinKey.
type Dimension struct {
	ID            string
	Description   string
	Table         string
	Column        string
	JoinKey       string
	FactKey       string
	Category      Category
	Hierarchy     string
	Level         int
	DataType      DataType
	AllowedValues []string
	// ExposeValues marks AllowedValues as safe to show the intent extractor.
	ExposeValues bool
}

func (d Dimension) clone() Dimension {
	d.AllowedValues = slices.Clone(d.AllowedValues)
	return d
}

// RoleRule lists the scope dimensions a restricted role must carry.
type RoleRule struct {
	ScopeDimensions []string
}

// AccessPolicy is the tenant's row-level access configuration.
type AccessPolicy struct {
	UnrestrictedRoles []string
	Roles             map[string]RoleRule
}

// IsUnrestricted reports whether role sees every row.
func (p AccessPolicy) IsUnrestricted(role string) bool {
	return slices.Contains(p.UnrestrictedRoles, role)
}

func (p AccessPolicy) clone() AccessPolicy {
	out := AccessPolicy{UnrestrictedRoles: slices.Clone(p.UnrestrictedRoles)}
	if p.Roles != nil {
		out.Roles = make(map[string]RoleRule, len(p.Roles))
		for role, r := range p.Roles {
			out.Roles[role] = RoleRule{ScopeDimensions: slices.Clone(r.ScopeDimensions)}
		}
	}
	return out
}

// Rule returns the rule for a restricted role.
func (p AccessPolicy) Rule(role string) (RoleRule, bool) {
	r, ok := p.Roles[role]
	return r, ok
}

// Catalog is the immutable semantic catalog of one tenant.
type Catalog struct {
	tenant     string
	aliases    []string
	schema     string
	tables     map[string]Table
	metrics    []Metric
	metricIdx  map[string]int
	dimensions []Dimension
	dimIdx     map[string]int
	policy     AccessPolicy
}

// TenantID returns the tenant the catalog belongs to.
func (c *Catalog) TenantID() string { return c.tenant }

// Names returns the tenant id followed by the lower-cased names the tenant is
// known by in free text.
func (c *Catalog) Names() []string {
	return append([]string{c.tenant}, c.aliases...)
}

// Schema returns the tenant's isolated database schema.
func (c *Catalog) Schema() string { return c.schema }

// AccessPolicy returns the tenant's row-level access policy.
func (c *Catalog) AccessPolicy() AccessPolicy { return c.policy.clone() }

// GetMetric looks up a metric by identifier.
func (c *Catalog) GetMetric(id string) (Metric, error) {
	i, ok := c.metricIdx[id]
	if !ok {
		return Metric{}, apperrors.New(apperrors.KindUnknownMetric, "", id,
			"metric %q is not defined in the %s catalog", id, c.tenant)
	}
	return c.metrics[i].clone(), nil
}

// GetDimension looks up a dimension by identifier.
func (c *Catalog) GetDimension(id string) (Dimension, error) {
	i, ok := c.dimIdx[id]
	if !ok {
		return Dimension{}, apperrors.New(apperrors.KindUnknownDimension, "", id,
			"dimension %q is not defined in the %s catalog", id, c.tenant)
	}
	return c.dimensions[i].clone(), nil
}

// HasMetric reports whether id names a metric.
func (c *Catalog) HasMetric(id string) bool {
	_, ok := c.metricIdx[id]
	return ok
}

// HasDimension reports whether id names a dimension.
func (c *Catalog) HasDimension(id string) bool {
	_, ok := c.dimIdx[id]
	return ok
}

// ListMetrics returns all metrics in declaration order.
func (c *Catalog) ListMetrics() []Metric {
	out := make([]Metric, len(c.metrics))
	for i, m := range c.metrics {
		out[i] = m.clone()
	}
	return out
}

// ListDimensions returns all dimensions in declaration order.
func (c *Catalog) ListDimensions() []Dimension {
	out := make([]Dimension, len(c.dimensions))
	for i, d := range c.dimensions {
		out[i] = d.clone()
	}
	return out
}

// Table returns a declared table.
func (c *Catalog) Table(name string) (Table, bool) {
	t, ok := c.tables[name]
	t.Columns = slices.Clone(t.Columns)
	return t, ok
}

// TableNames returns the declared tables, sorted.
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CanReach reports whether dimension d can be attached to a query over
// factTable, either because it lives there or because the join columns exist.
func (c *Catalog) CanReach(factTable string, d Dimension) bool {
	if d.Table == factTable {
		return true
	}
	if d.JoinKey == "" {
		return false
	}
	fact, ok := c.tables[factTable]
	if !ok || fact.Kind != TableFact {
		return false
	}
	dimTable, ok := c.tables[d.Table]
	if !ok || dimTable.Kind != TableDimension {
		return false
	}
	return fact.HasColumn(d.FactKey) && dimTable.HasColumn(d.JoinKey)
}
