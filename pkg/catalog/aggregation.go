package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AggFunc is an aggregate function a metric may use.
type AggFunc string

const (
	AggSum           AggFunc = "SUM"
	AggCount         AggFunc = "COUNT"
	AggCountDistinct AggFunc = "COUNT_DISTINCT"
	AggAvg           AggFunc = "AVG"
	AggMin           AggFunc = "MIN"
	AggMax           AggFunc = "MAX"
)

// AggTerm is FUNC(column). Column is "*" only for COUNT(*).
type AggTerm struct {
	Func   AggFunc
	Column string
}

func (t AggTerm) String() string {
	if t.Func == AggCountDistinct {
		return "COUNT(DISTINCT " + t.Column + ")"
	}
	return string(t.Func) + "(" + t.Column + ")"
}

// Aggregation is a parsed metric expression: a single aggregate, or the ratio
// of two aggregates, optionally multiplied by a constant.
type Aggregation struct {
	Numerator   AggTerm
	Denominator *AggTerm
	Scale       float64 // 0 means no scaling
}

// IsRatio reports whether the expression divides two aggregates.
func (a Aggregation) IsRatio() bool {
	return a.Denominator != nil
}

// Columns returns every column the expression reads, excluding "*".
func (a Aggregation) Columns() []string {
	var cols []string
	if a.Numerator.Column != "*" {
		cols = append(cols, a.Numerator.Column)
	}
	if a.Denominator != nil && a.Denominator.Column != "*" {
		cols = append(cols, a.Denominator.Column)
	}
	return cols
}

func (a Aggregation) String() string {
	s := a.Numerator.String()
	if a.Denominator != nil {
		s += " / " + a.Denominator.String()
	}
	if a.Scale != 0 {
		s = "(" + s + ") * " + strconv.FormatFloat(a.Scale, 'f', -1, 64)
	}
	return s
}

var (
	aggTermPattern  = regexp.MustCompile(`(?i)^(SUM|COUNT|AVG|MIN|MAX)\s*\(\s*(DISTINCT\s+)?([A-Za-z_][A-Za-z0-9_]*|\*)\s*\)$`)
	aggScalePattern = regexp.MustCompile(`^(.*?)\s*\*\s*([0-9]+(?:\.[0-9]+)?)$`)
)

// ParseAggregation parses the restricted expression grammar accepted in
// catalog documents:
//
//	FUNC(col) | COUNT(*) | COUNT(DISTINCT col)
//	term / term
//	(term / term) * N
//
// Anything else is rejected; the expression is never passed through as SQL.
func ParseAggregation(expr string) (Aggregation, error) {
	var agg Aggregation
	s := strings.TrimSpace(expr)
	if s == "" {
		return agg, fmt.Errorf("empty aggregation")
	}

	if m := aggScalePattern.FindStringSubmatch(s); m != nil {
		scale, err := strconv.ParseFloat(m[2], 64)
		if err != nil || scale == 0 {
			return agg, fmt.Errorf("invalid scale factor %q", m[2])
		}
		agg.Scale = scale
		s = strings.TrimSpace(m[1])
	}

	for wrappedInParens(s) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		return agg, fmt.Errorf("only a single ratio is supported in %q", expr)
	}

	num, err := parseAggTerm(parts[0])
	if err != nil {
		return agg, err
	}
	agg.Numerator = num

	if len(parts) == 2 {
		den, err := parseAggTerm(parts[1])
		if err != nil {
			return agg, err
		}
		agg.Denominator = &den
	}

	if agg.Scale != 0 && agg.Denominator == nil {
		return agg, fmt.Errorf("scale factor is only allowed on ratios in %q", expr)
	}

	return agg, nil
}

func parseAggTerm(s string) (AggTerm, error) {
	s = strings.TrimSpace(s)
	m := aggTermPattern.FindStringSubmatch(s)
	if m == nil {
		return AggTerm{}, fmt.Errorf("unsupported aggregation %q", s)
	}

	fn := AggFunc(strings.ToUpper(m[1]))
	distinct := m[2] != ""
	col := m[3]

	switch {
	case distinct && fn != AggCount:
		return AggTerm{}, fmt.Errorf("DISTINCT is only supported with COUNT in %q", s)
	case distinct && col == "*":
		return AggTerm{}, fmt.Errorf("COUNT(DISTINCT *) is not valid")
	case col == "*" && fn != AggCount:
		return AggTerm{}, fmt.Errorf("%s(*) is not valid", fn)
	case distinct:
		fn = AggCountDistinct
	}

	return AggTerm{Func: fn, Column: col}, nil
}

// wrappedInParens reports whether the opening paren at s[0] closes at the
// last character.
func wrappedInParens(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i < len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
