package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/jsonutil"
)

// IntentKind is the shape of question a SemanticQuery answers.
type IntentKind string

const (
	IntentRanking    IntentKind = "ranking"
	IntentTrend      IntentKind = "trend"
	IntentComparison IntentKind = "comparison"
	IntentDiagnostic IntentKind = "diagnostic"
	IntentAggregate  IntentKind = "aggregate"
)

// Valid reports whether k is one of the supported intent kinds.
func (k IntentKind) Valid() bool {
	switch k {
	case IntentRanking, IntentTrend, IntentComparison, IntentDiagnostic, IntentAggregate:
		return true
	}
	return false
}

// FilterOperator is the comparison applied by a Filter.
type FilterOperator string

const (
	OpEq      FilterOperator = "eq"
	OpNeq     FilterOperator = "neq"
	OpIn      FilterOperator = "in"
	OpNotIn   FilterOperator = "not_in"
	OpGt      FilterOperator = "gt"
	OpGte     FilterOperator = "gte"
	OpLt      FilterOperator = "lt"
	OpLte     FilterOperator = "lte"
	OpBetween FilterOperator = "between"
)

// operatorAliases maps the spellings language models tend to produce.
var operatorAliases = map[string]FilterOperator{
	"=":            OpEq,
	"==":           OpEq,
	"equals":       OpEq,
	"!=":           OpNeq,
	"<>":           OpNeq,
	"not_equals":   OpNeq,
	"not in":       OpNotIn,
	">":            OpGt,
	">=":           OpGte,
	"<":            OpLt,
	"<=":           OpLte,
	"between":      OpBetween,
	"in":           OpIn,
	"not_in":       OpNotIn,
	"eq":           OpEq,
	"neq":          OpNeq,
	"gt":           OpGt,
	"gte":          OpGte,
	"lt":           OpLt,
	"lte":          OpLte,
	"greater_than": OpGt,
	"less_than":    OpLt,
}

// Valid reports whether o is a supported operator.
func (o FilterOperator) Valid() bool {
	_, ok := o.Arity()
	return ok
}

// Arity returns the number of values the operator takes. -1 means one or more.
func (o FilterOperator) Arity() (int, bool) {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return 1, true
	case OpBetween:
		return 2, true
	case OpIn, OpNotIn:
		return -1, true
	}
	return 0, false
}

// Filter constrains one dimension. Values are kept as text until the
// validator has checked them against the dimension's declared type.
type Filter struct {
	Dimension string         `json:"dimension"`
	Operator  FilterOperator `json:"operator"`
	Values    []string       `json:"values"`
}

// UnmarshalJSON accepts either "value" or "values", scalar or array, and
// normalises operator spellings. A missing operator means eq for a single
// value and in for several.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Dimension string          `json:"dimension"`
		Operator  string          `json:"operator"`
		Value     json.RawMessage `json:"value"`
		Values    json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	single, err := jsonutil.FlexibleStringList(raw.Value)
	if err != nil {
		return fmt.Errorf("filter %q value: %w", raw.Dimension, err)
	}
	multi, err := jsonutil.FlexibleStringList(raw.Values)
	if err != nil {
		return fmt.Errorf("filter %q values: %w", raw.Dimension, err)
	}
	if len(single) > 0 && len(multi) > 0 {
		return fmt.Errorf("filter %q: both value and values given", raw.Dimension)
	}

	f.Dimension = raw.Dimension
	f.Values = append(single, multi...)

	op := strings.ToLower(strings.TrimSpace(raw.Operator))
	switch {
	case op == "" && len(f.Values) > 1:
		f.Operator = OpIn
	case op == "":
		f.Operator = OpEq
	default:
		if alias, ok := operatorAliases[op]; ok {
			f.Operator = alias
		} else {
			f.Operator = FilterOperator(op)
		}
	}
	return nil
}

// TimeWindowKind enumerates the supported relative and absolute windows.
type TimeWindowKind string

const (
	WindowLastNDays   TimeWindowKind = "last_n_days"
	WindowLastNWeeks  TimeWindowKind = "last_n_weeks"
	WindowLastNMonths TimeWindowKind = "last_n_months"
	WindowThisWeek    TimeWindowKind = "this_week"
	WindowThisMonth   TimeWindowKind = "this_month"
	WindowLastMonth   TimeWindowKind = "last_month"
	WindowThisQuarter TimeWindowKind = "this_quarter"
	WindowThisYear    TimeWindowKind = "this_year"
	WindowCustom      TimeWindowKind = "custom"
)

// NeedsCount reports whether the window kind requires N.
func (k TimeWindowKind) NeedsCount() bool {
	return k == WindowLastNDays || k == WindowLastNWeeks || k == WindowLastNMonths
}

// Valid reports whether k is a supported window kind.
func (k TimeWindowKind) Valid() bool {
	switch k {
	case WindowLastNDays, WindowLastNWeeks, WindowLastNMonths,
		WindowThisWeek, WindowThisMonth, WindowLastMonth,
		WindowThisQuarter, WindowThisYear, WindowCustom:
		return true
	}
	return false
}

// TimeWindow restricts the metric's time column. Start and End are
// YYYY-MM-DD and only used by custom windows; both ends are inclusive.
type TimeWindow struct {
	Kind  TimeWindowKind `json:"kind"`
	N     int            `json:"n,omitempty"`
	Start string         `json:"start,omitempty"`
	End   string         `json:"end,omitempty"`
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort names a requested metric or group-by dimension. An empty By means the
// primary metric.
type Sort struct {
	By        string        `json:"by,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

// UnmarshalJSON also accepts a bare direction string such as "desc".
func (s *Sort) UnmarshalJSON(data []byte) error {
	var dir string
	if err := json.Unmarshal(data, &dir); err == nil {
		s.By = ""
		s.Direction = SortDirection(strings.ToLower(dir))
		return nil
	}

	type plain Sort
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.Direction = SortDirection(strings.ToLower(string(p.Direction)))
	*s = Sort(p)
	return nil
}

// SemanticQuery is the structured form of one user question. It lives for a
// single request.
type SemanticQuery struct {
	Intent           IntentKind  `json:"intent_kind"`
	PrimaryMetric    string      `json:"primary_metric"`
	SecondaryMetrics []string    `json:"secondary_metrics,omitempty"`
	GroupBy          []string    `json:"group_by,omitempty"`
	Filters          []Filter    `json:"filters,omitempty"`
	TimeWindow       *TimeWindow `json:"time_window,omitempty"`
	Sort             *Sort       `json:"sort,omitempty"`
	Limit            *int        `json:"limit,omitempty"`
}

// ParseSemanticQuery decodes an intent document.
func ParseSemanticQuery(data []byte) (*SemanticQuery, error) {
	var q SemanticQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode semantic query: %w", err)
	}
	return &q, nil
}

// Clone returns a deep copy so pipeline stages never mutate their input.
func (q *SemanticQuery) Clone() *SemanticQuery {
	if q == nil {
		return nil
	}
	out := *q
	out.SecondaryMetrics = cloneStrings(q.SecondaryMetrics)
	out.GroupBy = cloneStrings(q.GroupBy)
	if q.Filters != nil {
		out.Filters = make([]Filter, len(q.Filters))
		for i, f := range q.Filters {
			f.Values = cloneStrings(f.Values)
			out.Filters[i] = f
		}
	}
	if q.TimeWindow != nil {
		tw := *q.TimeWindow
		out.TimeWindow = &tw
	}
	if q.Sort != nil {
		s := *q.Sort
		out.Sort = &s
	}
	if q.Limit != nil {
		l := *q.Limit
		out.Limit = &l
	}
	return &out
}

// Metrics returns the primary metric followed by the secondary metrics.
func (q *SemanticQuery) Metrics() []string {
	out := make([]string, 0, 1+len(q.SecondaryMetrics))
	out = append(out, q.PrimaryMetric)
	return append(out, q.SecondaryMetrics...)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
