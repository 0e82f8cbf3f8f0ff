package anonymizer

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// Mapping is the bidirectional token table of one session. It is built once
// by Anonymize and only read afterwards.
type Mapping struct {
	tenant   string
	strategy Strategy

	metricTokens map[string]string // token -> real
	metricReal   map[string]string // real -> token
	dimTokens    map[string]string
	dimReal      map[string]string

	metricOrder []string
	dimOrder    []string
}

func newMapping(tenant string, strategy Strategy) *Mapping {
	return &Mapping{
		tenant:       tenant,
		strategy:     strategy,
		metricTokens: make(map[string]string),
		metricReal:   make(map[string]string),
		dimTokens:    make(map[string]string),
		dimReal:      make(map[string]string),
	}
}

func (m *Mapping) addMetric(token, real string) error {
	if _, dup := m.metricReal[real]; dup {
		return fmt.Errorf("metric %q listed twice", real)
	}
	if prev, clash := m.metricTokens[token]; clash {
		return fmt.Errorf("token %s issued for both %q and %q", token, prev, real)
	}
	m.metricTokens[token] = real
	m.metricReal[real] = token
	m.metricOrder = append(m.metricOrder, token)
	return nil
}

func (m *Mapping) addDimension(token, real string) error {
	if _, dup := m.dimReal[real]; dup {
		return fmt.Errorf("dimension %q listed twice", real)
	}
	if prev, clash := m.dimTokens[token]; clash {
		return fmt.Errorf("token %s issued for both %q and %q", token, prev, real)
	}
	if _, clash := m.metricTokens[token]; clash && m.strategy != StrategyNone {
		return fmt.Errorf("token %s issued for both a metric and a dimension", token)
	}
	m.dimTokens[token] = real
	m.dimReal[real] = token
	m.dimOrder = append(m.dimOrder, token)
	return nil
}

// Tenant returns the tenant the mapping was issued for.
func (m *Mapping) Tenant() string { return m.tenant }

// Strategy returns the strategy used to issue the tokens.
func (m *Mapping) Strategy() Strategy { return m.strategy }

// MetricToken returns the session token for a real metric identifier.
func (m *Mapping) MetricToken(real string) (string, bool) {
	t, ok := m.metricReal[real]
	return t, ok
}

// DimensionToken returns the session token for a real dimension identifier.
func (m *Mapping) DimensionToken(real string) (string, bool) {
	t, ok := m.dimReal[real]
	return t, ok
}

// RealMetric resolves a metric token.
func (m *Mapping) RealMetric(token string) (string, bool) {
	r, ok := m.metricTokens[token]
	return r, ok
}

// RealDimension resolves a dimension token.
func (m *Mapping) RealDimension(token string) (string, bool) {
	r, ok := m.dimTokens[token]
	return r, ok
}

// Summary counts what a mapping covers.
type Summary struct {
	MetricsMapped    int      `json:"metrics_mapped"`
	DimensionsMapped int      `json:"dimensions_mapped"`
	Strategy         Strategy `json:"strategy"`
}

// Summary returns the mapping's size and strategy.
func (m *Mapping) Summary() Summary {
	return Summary{
		MetricsMapped:    len(m.metricOrder),
		DimensionsMapped: len(m.dimOrder),
		Strategy:         m.strategy,
	}
}

// Export is token -> real identifier. It is for audit and debugging inside
// the trusted boundary and must never be sent to the extractor.
type Export struct {
	Metrics    map[string]string `json:"metrics"`
	Dimensions map[string]string `json:"dimensions"`
}

// Export copies the mapping.
func (m *Mapping) Export() Export {
	out := Export{
		Metrics:    make(map[string]string, len(m.metricTokens)),
		Dimensions: make(map[string]string, len(m.dimTokens)),
	}
	for t, r := range m.metricTokens {
		out.Metrics[t] = r
	}
	for t, r := range m.dimTokens {
		out.Dimensions[t] = r
	}
	return out
}

// UnmappedToken is one token the extractor returned that this session never
// issued, with the intent field it appeared in.
type UnmappedToken struct {
	Field string `json:"field"`
	Token string `json:"token"`
}

// UnmappedError reports every unmapped token of an intent.
type UnmappedError struct {
	Tokens []UnmappedToken
}

func (e *UnmappedError) Error() string {
	parts := make([]string, len(e.Tokens))
	for i, t := range e.Tokens {
		parts[i] = fmt.Sprintf("%s=%q", t.Field, t.Token)
	}
	return fmt.Sprintf("%s: tokens not issued in this session: %s",
		apperrors.KindUnmappedToken, strings.Join(parts, ", "))
}

// Unwrap makes errors.Is(err, apperrors.ErrUnmappedToken) hold.
func (e *UnmappedError) Unwrap() error {
	return apperrors.ErrUnmappedToken
}

// Deanonymize returns a copy of q with every token replaced by its real
// identifier: primary and secondary metrics, group-by, filter dimensions and
// the sort target. Any token the mapping does not know rejects the whole
// intent. Under StrategyNone the intent already carries real identifiers and
// is returned as a copy.
func Deanonymize(q *models.SemanticQuery, mapping *Mapping) (*models.SemanticQuery, error) {
	if q == nil {
		return nil, fmt.Errorf("nil semantic query")
	}
	if mapping == nil {
		return nil, fmt.Errorf("nil anonymization mapping")
	}
	out := q.Clone()
	if mapping.strategy == StrategyNone {
		return out, nil
	}

	var unmapped []UnmappedToken
	miss := func(field, token string) {
		unmapped = append(unmapped, UnmappedToken{Field: field, Token: token})
	}

	if out.PrimaryMetric != "" {
		if real, ok := mapping.RealMetric(out.PrimaryMetric); ok {
			out.PrimaryMetric = real
		} else {
			miss("primary_metric", out.PrimaryMetric)
		}
	}
	for i, tok := range out.SecondaryMetrics {
		if real, ok := mapping.RealMetric(tok); ok {
			out.SecondaryMetrics[i] = real
		} else {
			miss(fmt.Sprintf("secondary_metrics[%d]", i), tok)
		}
	}
	for i, tok := range out.GroupBy {
		if real, ok := mapping.RealDimension(tok); ok {
			out.GroupBy[i] = real
		} else {
			miss(fmt.Sprintf("group_by[%d]", i), tok)
		}
	}
	for i := range out.Filters {
		tok := out.Filters[i].Dimension
		if real, ok := mapping.RealDimension(tok); ok {
			out.Filters[i].Dimension = real
		} else {
			miss(fmt.Sprintf("filters[%d].dimension", i), tok)
		}
	}
	if out.Sort != nil && out.Sort.By != "" {
		if real, ok := mapping.RealMetric(out.Sort.By); ok {
			out.Sort.By = real
		} else if real, ok := mapping.RealDimension(out.Sort.By); ok {
			out.Sort.By = real
		} else {
			miss("sort.by", out.Sort.By)
		}
	}

	if len(unmapped) > 0 {
		return nil, &UnmappedError{Tokens: unmapped}
	}
	return out, nil
}
