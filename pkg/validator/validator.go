// Package validator checks a de-anonymized SemanticQuery against the tenant
// catalog before anything is built from it. Validation is pure: no I/O and
// no mutation of the input. Every problem is collected so the caller can
// report a complete diagnosis.
package validator

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

const (
	DefaultMaxLimit = 1000
	maxWindowCount  = 366
	maxValueLength  = 256
	dateLayout      = "2006-01-02"
)

// Options tunes validation limits.
type Options struct {
	MaxLimit int // 0 means DefaultMaxLimit
}

// ValidationErrors is the accumulated result of a failed validation. It
// unwraps to every individual error, so errors.Is works for each sentinel.
type ValidationErrors struct {
	Errors []*apperrors.Error
	// Injection lists filter values libinjection flagged. They are also
	// present in Errors as ambiguous filter values.
	Injection []*sql.InjectionCheckResult
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("semantic query rejected (%d problems): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes each collected error.
func (e *ValidationErrors) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// SecurityRelevant reports whether any value looked like an injection attempt.
func (e *ValidationErrors) SecurityRelevant() bool {
	return len(e.Injection) > 0
}

type validation struct {
	cat  *catalog.Catalog
	q    *models.SemanticQuery
	opts Options
	errs ValidationErrors

	primary *catalog.Metric
	metrics []catalog.Metric
}

func (v *validation) fail(kind apperrors.Kind, field, identifier, format string, args ...any) {
	v.errs.Errors = append(v.errs.Errors, apperrors.New(kind, field, identifier, format, args...))
}

// Validate checks q against cat. It returns q unchanged when it is valid and
// a *ValidationErrors otherwise.
func Validate(cat *catalog.Catalog, q *models.SemanticQuery, opts Options) (*models.SemanticQuery, error) {
	if q == nil {
		return nil, apperrors.New(apperrors.KindInvalidIntent, "", "", "empty semantic query")
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}

	v := &validation{cat: cat, q: q, opts: opts}
	v.checkIntent()
	v.checkMetrics()
	v.checkGroupBy()
	v.checkFilters()
	v.checkTimeWindow()
	v.checkSort()
	v.checkLimit()

	if len(v.errs.Errors) > 0 {
		return nil, &v.errs
	}
	return q, nil
}

func (v *validation) checkIntent() {
	if v.q.Intent == "" {
		return
	}
	if !v.q.Intent.Valid() {
		v.fail(apperrors.KindInvalidIntent, "intent_kind", string(v.q.Intent), "unsupported intent kind %q", v.q.Intent)
	}
}

// checkMetrics resolves the primary and secondary metrics. Secondary metrics
// must read the same fact table as the primary one.
func (v *validation) checkMetrics() {
	if v.q.PrimaryMetric == "" {
		v.fail(apperrors.KindUnknownMetric, "primary_metric", "", "primary metric is required")
	} else if m, err := v.cat.GetMetric(v.q.PrimaryMetric); err != nil {
		v.fail(apperrors.KindUnknownMetric, "primary_metric", v.q.PrimaryMetric, "metric %q is not defined", v.q.PrimaryMetric)
	} else {
		v.primary = &m
		v.metrics = append(v.metrics, m)
	}

	seen := map[string]bool{v.q.PrimaryMetric: true}
	for i, id := range v.q.SecondaryMetrics {
		field := fmt.Sprintf("secondary_metrics[%d]", i)
		m, err := v.cat.GetMetric(id)
		if err != nil {
			v.fail(apperrors.KindUnknownMetric, field, id, "metric %q is not defined", id)
			continue
		}
		if seen[id] {
			v.fail(apperrors.KindIncompatibleMetric, field, id, "metric %q is requested more than once", id)
			continue
		}
		seen[id] = true
		if v.primary != nil && m.Table != v.primary.Table {
			v.fail(apperrors.KindIncompatibleMetric, field, id,
				"metric %q cannot be combined with %q: they aggregate different tables", id, v.primary.ID)
			continue
		}
		v.metrics = append(v.metrics, m)
	}
}

func (v *validation) checkGroupBy() {
	seen := make(map[string]bool)
	for i, id := range v.q.GroupBy {
		field := fmt.Sprintf("group_by[%d]", i)
		d, err := v.cat.GetDimension(id)
		if err != nil {
			v.fail(apperrors.KindUnknownDimension, field, id, "dimension %q is not defined", id)
			continue
		}
		if seen[id] {
			v.fail(apperrors.KindIncompatibleDimension, field, id, "duplicate group-by dimension %q", id)
			continue
		}
		seen[id] = true

		if v.primary == nil {
			continue
		}
		for _, m := range v.metrics {
			if !m.AllowsCategory(d.Category) {
				v.fail(apperrors.KindIncompatibleDimension, field, id,
					"metric %q cannot be grouped by %s dimension %q", m.ID, d.Category, id)
				break
			}
		}
	}
}

// checkFilters resolves each filter dimension and checks its values against
// the operator's arity and the dimension's declared type. Filters need not be
// groupable by the metric but the dimension must be joinable to its table.
func (v *validation) checkFilters() {
	for i, f := range v.q.Filters {
		field := fmt.Sprintf("filters[%d]", i)
		d, err := v.cat.GetDimension(f.Dimension)
		if err != nil {
			v.fail(apperrors.KindUnknownDimension, field+".dimension", f.Dimension, "dimension %q is not defined", f.Dimension)
			continue
		}
		if v.primary != nil && !v.cat.CanReach(v.primary.Table, d) {
			v.fail(apperrors.KindIncompatibleDimension, field+".dimension", f.Dimension,
				"dimension %q cannot be applied to metric %q", f.Dimension, v.primary.ID)
		}

		arity, ok := f.Operator.Arity()
		if !ok {
			v.fail(apperrors.KindAmbiguousFilterValue, field+".operator", string(f.Operator), "unsupported operator %q", f.Operator)
			continue
		}
		switch {
		case arity == -1 && len(f.Values) == 0:
			v.fail(apperrors.KindAmbiguousFilterValue, field+".values", f.Dimension, "operator %s needs at least one value", f.Operator)
		case arity > 0 && len(f.Values) != arity:
			v.fail(apperrors.KindAmbiguousFilterValue, field+".values", f.Dimension,
				"operator %s takes %d value(s), got %d", f.Operator, arity, len(f.Values))
		}
		if (f.Operator == models.OpGt || f.Operator == models.OpGte || f.Operator == models.OpLt ||
			f.Operator == models.OpLte || f.Operator == models.OpBetween) && d.DataType == catalog.TypeBoolean {
			v.fail(apperrors.KindAmbiguousFilterValue, field+".operator", string(f.Operator),
				"operator %s is not defined for boolean dimension %q", f.Operator, d.ID)
		}

		for j, value := range f.Values {
			vfield := fmt.Sprintf("%s.values[%d]", field, j)
			if msg := checkValue(d, value); msg != "" {
				v.fail(apperrors.KindAmbiguousFilterValue, vfield, f.Dimension, "%s", msg)
				continue
			}
			if hit := sql.CheckValueForInjection(vfield, f.Dimension, value); hit != nil {
				v.errs.Injection = append(v.errs.Injection, hit)
				v.fail(apperrors.KindAmbiguousFilterValue, vfield, f.Dimension, "value rejected as unsafe")
			}
		}

		if f.Operator == models.OpBetween && len(f.Values) == 2 && d.DataType != catalog.TypeString {
			if lo, hi, ok := orderedPair(d.DataType, f.Values[0], f.Values[1]); ok && lo > hi {
				v.fail(apperrors.KindAmbiguousFilterValue, field+".values", f.Dimension, "between bounds are reversed")
			}
		}
	}
}

// checkValue returns a description of what is wrong with value, or "".
func checkValue(d catalog.Dimension, value string) string {
	if strings.TrimSpace(value) == "" {
		return "empty filter value"
	}
	if len(value) > maxValueLength {
		return fmt.Sprintf("filter value longer than %d bytes", maxValueLength)
	}
	if strings.ContainsRune(value, 0) {
		return "filter value contains a NUL byte"
	}

	switch d.DataType {
	case catalog.TypeInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Sprintf("%q is not an integer", value)
		}
	case catalog.TypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Sprintf("%q is not a number", value)
		}
	case catalog.TypeDate:
		if _, err := time.Parse(dateLayout, value); err != nil {
			return fmt.Sprintf("%q is not a YYYY-MM-DD date", value)
		}
	case catalog.TypeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Sprintf("%q is not a boolean", value)
		}
	}

	if len(d.AllowedValues) > 0 && !slices.Contains(d.AllowedValues, value) {
		return fmt.Sprintf("%q is not one of the allowed values of %s", value, d.ID)
	}
	return ""
}

// orderedPair converts two already type-checked values to comparable floats.
func orderedPair(t catalog.DataType, a, b string) (float64, float64, bool) {
	switch t {
	case catalog.TypeInteger, catalog.TypeNumber:
		x, err1 := strconv.ParseFloat(a, 64)
		y, err2 := strconv.ParseFloat(b, 64)
		return x, y, err1 == nil && err2 == nil
	case catalog.TypeDate:
		x, err1 := time.Parse(dateLayout, a)
		y, err2 := time.Parse(dateLayout, b)
		return float64(x.Unix()), float64(y.Unix()), err1 == nil && err2 == nil
	}
	return 0, 0, false
}

func (v *validation) checkTimeWindow() {
	tw := v.q.TimeWindow
	if tw == nil {
		return
	}
	bad := func(format string, args ...any) {
		v.fail(apperrors.KindInvalidTimeWindow, "time_window", string(tw.Kind), format, args...)
	}

	if !tw.Kind.Valid() {
		bad("unsupported time window kind %q", tw.Kind)
		return
	}
	if tw.Kind.NeedsCount() {
		if tw.N < 1 || tw.N > maxWindowCount {
			bad("%s needs n between 1 and %d, got %d", tw.Kind, maxWindowCount, tw.N)
		}
	} else if tw.N != 0 {
		bad("%s does not take n", tw.Kind)
	}

	if tw.Kind == models.WindowCustom {
		start, err1 := time.Parse(dateLayout, tw.Start)
		end, err2 := time.Parse(dateLayout, tw.End)
		switch {
		case err1 != nil || err2 != nil:
			bad("custom window needs start and end as YYYY-MM-DD")
		case start.After(end):
			bad("custom window start %s is after end %s", tw.Start, tw.End)
		}
	} else if tw.Start != "" || tw.End != "" {
		bad("%s does not take start or end", tw.Kind)
	}

	if v.primary != nil && v.primary.TimeColumn == "" {
		bad("metric %q has no time column", v.primary.ID)
	}
}

func (v *validation) checkSort() {
	s := v.q.Sort
	if s == nil {
		return
	}
	if s.Direction != "" && s.Direction != models.SortAsc && s.Direction != models.SortDesc {
		v.fail(apperrors.KindInvalidIntent, "sort.direction", string(s.Direction), "sort direction must be asc or desc")
	}
	if s.By == "" {
		return
	}
	if s.By == v.q.PrimaryMetric || slices.Contains(v.q.SecondaryMetrics, s.By) || slices.Contains(v.q.GroupBy, s.By) {
		return
	}
	switch {
	case v.cat.HasMetric(s.By):
		v.fail(apperrors.KindUnknownMetric, "sort.by", s.By, "sort metric %q is not requested", s.By)
	case v.cat.HasDimension(s.By):
		v.fail(apperrors.KindUnknownDimension, "sort.by", s.By, "sort dimension %q is not in group_by", s.By)
	default:
		v.fail(apperrors.KindUnknownMetric, "sort.by", s.By, "%q is neither a metric nor a dimension", s.By)
	}
}

func (v *validation) checkLimit() {
	if v.q.Limit == nil {
		return
	}
	if n := *v.q.Limit; n < 1 || n > v.opts.MaxLimit {
		v.fail(apperrors.KindInvalidIntent, "limit", strconv.Itoa(n), "limit must be between 1 and %d", v.opts.MaxLimit)
	}
}
