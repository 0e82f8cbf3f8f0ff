package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

var (
	tenantPattern     = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	sqlNamePattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidTenantID reports whether id is an acceptable tenant identifier.
func ValidTenantID(id string) bool {
	return tenantPattern.MatchString(id)
}

// DefaultSchema is the schema used when a document does not name one.
func DefaultSchema(tenant string) string {
	return "client_" + tenant
}

// LoadError describes one problem in a catalog document. Entry identifies the
// offending element, e.g. `metric "net_value"`.
type LoadError struct {
	Tenant string
	Entry  string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("catalog %s: %s: %s", e.Tenant, e.Entry, e.Reason)
}

// Unwrap makes errors.Is(err, apperrors.ErrCatalogLoad) hold.
func (e *LoadError) Unwrap() error {
	return apperrors.ErrCatalogLoad
}

type document struct {
	Tenant            string           `yaml:"tenant"`
	Aliases           []string         `yaml:"aliases"`
	Schema            string           `yaml:"schema"`
	DefaultTimeColumn string           `yaml:"default_time_column"`
	Tables            []tableDoc       `yaml:"tables"`
	Metrics           []metricDoc      `yaml:"metrics"`
	Dimensions        []dimensionDoc   `yaml:"dimensions"`
	AccessPolicy      *accessPolicyDoc `yaml:"access_policy"`
}

type tableDoc struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Columns []string `yaml:"columns"`
}

type metricDoc struct {
	ID                  string   `yaml:"id"`
	Description         string   `yaml:"description"`
	Table               string   `yaml:"table"`
	Aggregation         string   `yaml:"aggregation"`
	Format              string   `yaml:"format"`
	Category            string   `yaml:"category"`
	DimensionCategories []string `yaml:"dimension_categories"`
	TimeColumn          string   `yaml:"time_column"`
}

type dimensionDoc struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Table       string   `yaml:"table"`
	Column      string   `yaml:"column"`
	JoinKey     string   `yaml:"join_key"`
	FactKey     string   `yaml:"fact_key"`
	Category    string   `yaml:"category"`
	Hierarchy   string   `yaml:"hierarchy"`
	Level       int      `yaml:"level"`
	Type        string   `yaml:"type"`
	Values      []string `yaml:"values"`
	// ExposeValues lets the extractor see Values. Off by default: values are
	// tenant data.
	ExposeValues bool `yaml:"expose_values"`
}

type accessPolicyDoc struct {
	UnrestrictedRoles []string           `yaml:"unrestricted_roles"`
	Roles             map[string]roleDoc `yaml:"roles"`
}

type roleDoc struct {
	ScopeDimensions []string `yaml:"scope_dimensions"`
}

var metricCategories = []string{"value", "volume", "ratio", "count", "average", "metric"}

// LoadFile reads and loads a catalog document from disk.
func LoadFile(tenant, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Tenant: tenant, Entry: "document", Reason: err.Error()}
	}
	return Parse(tenant, data)
}

// Load reads a catalog document from r.
func Load(tenant string, r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Tenant: tenant, Entry: "document", Reason: err.Error()}
	}
	return Parse(tenant, data)
}

// Parse builds a Catalog from YAML. Every problem found is reported; the
// returned error joins one *LoadError per offending entry.
func Parse(tenant string, data []byte) (*Catalog, error) {
	if !ValidTenantID(tenant) {
		return nil, &LoadError{Tenant: tenant, Entry: "tenant", Reason: "tenant id must match " + tenantPattern.String()}
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &LoadError{Tenant: tenant, Entry: "document", Reason: err.Error()}
	}

	b := &builder{tenant: tenant}
	cat := b.build(&doc)
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return cat, nil
}

type builder struct {
	tenant string
	errs   []error
}

func (b *builder) fail(entry, format string, args ...any) {
	b.errs = append(b.errs, &LoadError{Tenant: b.tenant, Entry: entry, Reason: fmt.Sprintf(format, args...)})
}

func (b *builder) build(doc *document) *Catalog {
	if doc.Tenant != b.tenant {
		b.fail("tenant", "document declares tenant %q", doc.Tenant)
	}

	schema := doc.Schema
	if schema == "" {
		schema = DefaultSchema(b.tenant)
	}
	if !sqlNamePattern.MatchString(schema) {
		b.fail("schema", "invalid schema name %q", schema)
	}

	var aliases []string
	for i, a := range doc.Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			b.fail(fmt.Sprintf("aliases[%d]", i), "alias is empty")
			continue
		}
		aliases = append(aliases, a)
	}

	cat := &Catalog{
		tenant:    b.tenant,
		aliases:   aliases,
		schema:    schema,
		tables:    make(map[string]Table),
		metricIdx: make(map[string]int),
		dimIdx:    make(map[string]int),
	}

	factTables := make(map[string]bool)
	for _, m := range doc.Metrics {
		factTables[m.Table] = true
	}

	for _, td := range doc.Tables {
		b.addTable(cat, td, factTables[td.Name])
	}
	if len(doc.Metrics) == 0 {
		b.fail("metrics", "at least one metric is required")
	}

	for _, dd := range doc.Dimensions {
		b.addDimension(cat, dd)
	}
	for _, md := range doc.Metrics {
		b.addMetric(cat, md, doc.DefaultTimeColumn)
	}

	b.checkReachability(cat)
	cat.policy = b.buildPolicy(cat, doc.AccessPolicy)
	return cat
}

func (b *builder) addTable(cat *Catalog, td tableDoc, usedByMetric bool) {
	entry := fmt.Sprintf("table %q", td.Name)
	if !sqlNamePattern.MatchString(td.Name) {
		b.fail(entry, "invalid table name")
		return
	}
	if _, dup := cat.tables[td.Name]; dup {
		b.fail(entry, "declared more than once")
		return
	}

	kind := TableKind(td.Kind)
	switch {
	case kind == "" && usedByMetric:
		kind = TableFact
	case kind == "":
		kind = TableDimension
	case kind != TableFact && kind != TableDimension:
		b.fail(entry, "unknown kind %q", td.Kind)
	}
	if usedByMetric && kind == TableDimension {
		b.fail(entry, "metrics aggregate this table but it is declared as a dimension table")
	}

	for _, col := range td.Columns {
		if !sqlNamePattern.MatchString(col) {
			b.fail(entry, "invalid column name %q", col)
		}
	}

	cat.tables[td.Name] = Table{Name: td.Name, Kind: kind, Columns: slices.Clone(td.Columns)}
}

func (b *builder) addDimension(cat *Catalog, dd dimensionDoc) {
	entry := fmt.Sprintf("dimension %q", dd.ID)
	if !identifierPattern.MatchString(dd.ID) {
		b.fail(entry, "identifier must match %s", identifierPattern)
		return
	}
	if _, dup := cat.dimIdx[dd.ID]; dup {
		b.fail(entry, "declared more than once")
		return
	}

	d := Dimension{
		ID:            dd.ID,
		Description:   dd.Description,
		Table:         dd.Table,
		Column:        dd.Column,
		JoinKey:       dd.JoinKey,
		FactKey:       dd.FactKey,
		Category:      Category(dd.Category),
		Hierarchy:     dd.Hierarchy,
		Level:         dd.Level,
		DataType:      DataType(dd.Type),
		AllowedValues: slices.Clone(dd.Values),
		ExposeValues:  dd.ExposeValues,
	}
	if d.Column == "" {
		d.Column = d.ID
	}
	if d.FactKey == "" {
		d.FactKey = d.JoinKey
	}
	if d.DataType == "" {
		d.DataType = TypeString
	}

	if d.ExposeValues && len(d.AllowedValues) == 0 {
		b.fail(entry, "expose_values needs a values list")
	}
	if !slices.Contains(knownCategories, d.Category) {
		b.fail(entry, "unknown category %q", dd.Category)
	}
	switch d.DataType {
	case TypeString, TypeInteger, TypeNumber, TypeDate, TypeBoolean:
	default:
		b.fail(entry, "unknown type %q", dd.Type)
	}

	table, ok := cat.tables[d.Table]
	if !ok {
		b.fail(entry, "references undeclared table %q", d.Table)
	} else {
		if !table.HasColumn(d.Column) {
			b.fail(entry, "column %q does not exist on %s", d.Column, d.Table)
		}
		if table.Kind == TableDimension {
			if d.JoinKey == "" {
				b.fail(entry, "join_key is required for dimension tables")
			} else if !table.HasColumn(d.JoinKey) {
				b.fail(entry, "join_key %q does not exist on %s", d.JoinKey, d.Table)
			}
		}
	}
	for _, name := range []string{d.Column, d.JoinKey, d.FactKey} {
		if name != "" && !sqlNamePattern.MatchString(name) {
			b.fail(entry, "invalid column name %q", name)
		}
	}

	cat.dimIdx[d.ID] = len(cat.dimensions)
	cat.dimensions = append(cat.dimensions, d)
}

func (b *builder) addMetric(cat *Catalog, md metricDoc, defaultTimeColumn string) {
	entry := fmt.Sprintf("metric %q", md.ID)
	if !identifierPattern.MatchString(md.ID) {
		b.fail(entry, "identifier must match %s", identifierPattern)
		return
	}
	if _, dup := cat.metricIdx[md.ID]; dup {
		b.fail(entry, "declared more than once")
		return
	}
	if _, clash := cat.dimIdx[md.ID]; clash {
		b.fail(entry, "identifier is also used by a dimension")
		return
	}

	agg, err := ParseAggregation(md.Aggregation)
	if err != nil {
		b.fail(entry, "aggregation: %v", err)
	}

	m := Metric{
		ID:          md.ID,
		Description: md.Description,
		Table:       md.Table,
		Aggregation: agg,
		Expression:  md.Aggregation,
		Format:      Format(md.Format),
		Category:    strings.ToLower(md.Category),
		TimeColumn:  md.TimeColumn,
	}
	if m.Format == "" {
		m.Format = FormatNumber
		if agg.Scale == 100 {
			m.Format = FormatPercent
		}
	}
	switch m.Format {
	case FormatCurrency, FormatNumber, FormatPercent:
	default:
		b.fail(entry, "unknown format %q", md.Format)
	}
	if m.Category != "" && !slices.Contains(metricCategories, m.Category) {
		b.fail(entry, "unknown category %q", md.Category)
	}

	if len(md.DimensionCategories) == 0 {
		b.fail(entry, "dimension_categories must list at least one category")
	}
	for _, c := range md.DimensionCategories {
		dc := Category(c)
		if !slices.Contains(knownCategories, dc) {
			b.fail(entry, "unknown dimension category %q", c)
			continue
		}
		if !slices.Contains(m.DimensionCategories, dc) {
			m.DimensionCategories = append(m.DimensionCategories, dc)
		}
	}

	table, ok := cat.tables[m.Table]
	if !ok {
		b.fail(entry, "references undeclared table %q", m.Table)
	} else {
		for _, col := range agg.Columns() {
			if !table.HasColumn(col) {
				b.fail(entry, "column %q does not exist on %s", col, m.Table)
			}
		}
		if m.TimeColumn != "" && !table.HasColumn(m.TimeColumn) {
			b.fail(entry, "time_column %q does not exist on %s", m.TimeColumn, m.Table)
		}
		if m.TimeColumn == "" && defaultTimeColumn != "" && table.HasColumn(defaultTimeColumn) {
			m.TimeColumn = defaultTimeColumn
		}
	}
	if m.TimeColumn != "" && !sqlNamePattern.MatchString(m.TimeColumn) {
		b.fail(entry, "invalid time_column %q", m.TimeColumn)
	}

	cat.metricIdx[m.ID] = len(cat.metrics)
	cat.metrics = append(cat.metrics, m)
}

// checkReachability verifies every metric can join every dimension whose
// category it allows, so that compatibility never fails at query time for a
// structural reason.
func (b *builder) checkReachability(cat *Catalog) {
	for _, m := range cat.metrics {
		if _, ok := cat.tables[m.Table]; !ok {
			continue
		}
		for _, d := range cat.dimensions {
			if !m.AllowsCategory(d.Category) {
				continue
			}
			if _, ok := cat.tables[d.Table]; !ok {
				continue
			}
			if !cat.CanReach(m.Table, d) {
				b.fail(fmt.Sprintf("dimension %q", d.ID),
					"allowed for metric %q but cannot be joined to %s (fact key %q)", m.ID, m.Table, d.FactKey)
			}
		}
	}
}

func (b *builder) buildPolicy(cat *Catalog, pd *accessPolicyDoc) AccessPolicy {
	if pd == nil {
		return AccessPolicy{UnrestrictedRoles: []string{"admin"}, Roles: map[string]RoleRule{}}
	}

	policy := AccessPolicy{
		UnrestrictedRoles: make([]string, 0, len(pd.UnrestrictedRoles)),
		Roles:             make(map[string]RoleRule, len(pd.Roles)),
	}
	for _, role := range pd.UnrestrictedRoles {
		role = strings.ToLower(role)
		if !slices.Contains(policy.UnrestrictedRoles, role) {
			policy.UnrestrictedRoles = append(policy.UnrestrictedRoles, role)
		}
	}

	for name, rd := range pd.Roles {
		role := strings.ToLower(name)
		entry := fmt.Sprintf("access_policy role %q", name)
		if slices.Contains(policy.UnrestrictedRoles, role) {
			b.fail(entry, "role is also listed as unrestricted")
			continue
		}
		if len(rd.ScopeDimensions) == 0 {
			b.fail(entry, "scope_dimensions must not be empty")
			continue
		}
		for _, dim := range rd.ScopeDimensions {
			if !cat.HasDimension(dim) {
				b.fail(entry, "scope dimension %q is not defined", dim)
			}
		}
		policy.Roles[role] = RoleRule{ScopeDimensions: slices.Clone(rd.ScopeDimensions)}
	}
	return policy
}
