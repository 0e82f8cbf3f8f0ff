package anonymizer

import (
	"slices"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
)

// Metric categories exposed to the intent extractor.
const (
	MetricValue   = "value"
	MetricVolume  = "volume"
	MetricRatio   = "ratio"
	MetricCount   = "count"
	MetricAverage = "average"
	MetricGeneric = "metric"
)

var (
	volumeWords = []string{"volume", "quantity", "unit", "qty", "case"}
	valueWords  = []string{"value", "amount", "revenue", "sale", "margin", "profit", "price"}
)

var metricDescriptions = map[string]string{
	MetricValue:   "Monetary value measurement",
	MetricVolume:  "Quantity measurement",
	MetricRatio:   "Calculated ratio or percentage",
	MetricCount:   "Count of items",
	MetricAverage: "Average value calculation",
	MetricGeneric: "Business metric measurement",
}

var dimensionDescriptions = map[catalog.Category]string{
	catalog.CategoryTime:      "Time period attribute",
	catalog.CategoryProduct:   "Product hierarchy attribute",
	catalog.CategoryGeography: "Geographic location attribute",
	catalog.CategoryCustomer:  "Customer relationship attribute",
	catalog.CategoryChannel:   "Sales channel attribute",
	catalog.CategorySales:     "Sales organisation attribute",
	catalog.CategoryAttribute: "Descriptive attribute",
}

// MetricCategory derives the anonymization category of a metric. The
// aggregation shape decides first; plain sums fall back to keywords in the
// identifier and description.
func MetricCategory(m catalog.Metric) string {
	if m.Category != "" {
		return m.Category
	}

	agg := m.Aggregation
	switch {
	case agg.IsRatio():
		return MetricRatio
	case agg.Numerator.Func == catalog.AggCount || agg.Numerator.Func == catalog.AggCountDistinct:
		return MetricCount
	case agg.Numerator.Func == catalog.AggAvg:
		return MetricAverage
	}

	words := singularWords(m.ID + " " + m.Description)
	for _, w := range words {
		if slices.Contains(volumeWords, w) {
			return MetricVolume
		}
	}
	for _, w := range words {
		if slices.Contains(valueWords, w) {
			return MetricValue
		}
	}
	return MetricGeneric
}

// MetricDescription is the generic description shown in place of the real one.
func MetricDescription(category string) string {
	if d, ok := metricDescriptions[category]; ok {
		return d
	}
	return metricDescriptions[MetricGeneric]
}

// DimensionDescription is the generic description for a dimension category.
func DimensionDescription(c catalog.Category) string {
	if d, ok := dimensionDescriptions[c]; ok {
		return d
	}
	return "Data dimension"
}

func singularWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for i, f := range fields {
		fields[i] = inflection.Singular(f)
	}
	return fields
}
