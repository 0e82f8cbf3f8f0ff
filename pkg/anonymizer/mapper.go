// Package anonymizer replaces a tenant's real metric and dimension
// identifiers with opaque tokens before the catalog is shown to an untrusted
// intent extractor, and maps the extractor's answer back.
//
// A Mapping belongs to one session. It is created by Anonymize, carried on the
// request, and dropped with it; nothing in this package keeps mappings around.
package anonymizer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
)

const hashTokenLength = 10

// MetricEntry is what the extractor learns about a metric.
type MetricEntry struct {
	Token       string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Format      string   `json:"format"`
	GroupableBy []string `json:"groupable_by"`
}

// DimensionEntry is what the extractor learns about a dimension.
type DimensionEntry struct {
	Token         string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// AnonymizedCatalog is the catalog view handed to the extractor. It carries
// no tenant name, table or column.
type AnonymizedCatalog struct {
	Metrics    []MetricEntry    `json:"metrics"`
	Dimensions []DimensionEntry `json:"dimensions"`
}

// Mapper issues mappings for one deployment-wide strategy.
type Mapper struct {
	strategy Strategy
	salt     []byte
}

// NewMapper creates a mapper. The hash strategy needs a non-empty salt.
func NewMapper(strategy Strategy, salt string) (*Mapper, error) {
	switch strategy {
	case StrategySequential, StrategyCategorical, StrategyNone:
	case StrategyHash:
		if salt == "" {
			return nil, fmt.Errorf("hash anonymization requires a salt")
		}
	default:
		return nil, fmt.Errorf("unknown anonymization strategy %q", strategy)
	}
	return &Mapper{strategy: strategy, salt: []byte(salt)}, nil
}

// Strategy returns the mapper's strategy.
func (m *Mapper) Strategy() Strategy { return m.strategy }

// Anonymize builds a fresh mapping for one session. Tokens depend only on the
// strategy, the order of the inputs and, for hashes, the salt and tenant.
func (m *Mapper) Anonymize(tenant string, metrics []catalog.Metric, dims []catalog.Dimension) (*AnonymizedCatalog, *Mapping, error) {
	mapping := newMapping(tenant, m.strategy)
	out := &AnonymizedCatalog{
		Metrics:    make([]MetricEntry, 0, len(metrics)),
		Dimensions: make([]DimensionEntry, 0, len(dims)),
	}

	perCategory := make(map[string]int)
	for i, metric := range metrics {
		category := MetricCategory(metric)
		perCategory[category]++

		var token string
		switch m.strategy {
		case StrategySequential:
			token = fmt.Sprintf("metric_%03d", i+1)
		case StrategyCategorical:
			token = fmt.Sprintf("%s_metric_%03d", category, perCategory[category])
		case StrategyHash:
			token = "metric_" + m.hash(tenant, "metric", metric.ID)
		case StrategyNone:
			token = metric.ID
		}
		if err := mapping.addMetric(token, metric.ID); err != nil {
			return nil, nil, err
		}

		entry := MetricEntry{
			Token:       token,
			Description: MetricDescription(category),
			Category:    category,
			Format:      string(metric.Format),
			GroupableBy: make([]string, len(metric.DimensionCategories)),
		}
		for j, c := range metric.DimensionCategories {
			entry.GroupableBy[j] = string(c)
		}
		if m.strategy == StrategyNone && metric.Description != "" {
			entry.Description = metric.Description
		}
		out.Metrics = append(out.Metrics, entry)
	}

	perDimCategory := make(map[catalog.Category]int)
	for i, dim := range dims {
		perDimCategory[dim.Category]++

		var token string
		switch m.strategy {
		case StrategySequential:
			token = fmt.Sprintf("dimension_%03d", i+1)
		case StrategyCategorical:
			token = fmt.Sprintf("%s_dimension_%03d", dim.Category, perDimCategory[dim.Category])
		case StrategyHash:
			token = "dimension_" + m.hash(tenant, "dimension", dim.ID)
		case StrategyNone:
			token = dim.ID
		}
		if err := mapping.addDimension(token, dim.ID); err != nil {
			return nil, nil, err
		}

		entry := DimensionEntry{
			Token:       token,
			Description: DimensionDescription(dim.Category),
			Category:    string(dim.Category),
		}
		// Values are real tenant data; only dimensions that opt in share them.
		if dim.ExposeValues {
			entry.AllowedValues = slices.Clone(dim.AllowedValues)
		}
		if m.strategy == StrategyNone && dim.Description != "" {
			entry.Description = dim.Description
		}
		out.Dimensions = append(out.Dimensions, entry)
	}

	return out, mapping, nil
}

// AnonymizeCatalog anonymizes every metric and dimension of cat.
func (m *Mapper) AnonymizeCatalog(cat *catalog.Catalog) (*AnonymizedCatalog, *Mapping, error) {
	return m.Anonymize(cat.TenantID(), cat.ListMetrics(), cat.ListDimensions())
}

func (m *Mapper) hash(tenant, kind, id string) string {
	mac := hmac.New(sha256.New, m.salt)
	mac.Write([]byte(strings.Join([]string{tenant, kind, id}, "|")))
	return hex.EncodeToString(mac.Sum(nil))[:hashTokenLength]
}
