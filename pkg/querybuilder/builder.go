// Package querybuilder turns a validated, row-scoped SemanticQuery into a
// sqlast.Select. Every table and column in the tree comes from a catalog
// lookup; nothing from the intent is used as an identifier directly.
package querybuilder

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/sqlast"
)

// DefaultRankingLimit is applied to ranking intents that do not set a limit.
const DefaultRankingLimit = 10

// Options carries request-scoped inputs to the builder.
type Options struct {
	// Now anchors relative time windows. It is captured once per session so
	// that repeated builds of the same intent are identical.
	Now                 time.Time
	DefaultRankingLimit int
}

type builder struct {
	cat    *catalog.Catalog
	q      *models.SemanticQuery
	metric catalog.Metric
	sel    *sqlast.Select
	joined map[string]string // dimension table -> join key
}

// Build constructs the AST for sq. The query must already have passed
// validation; Build still resolves every identifier and fails rather than
// guessing when one does not resolve.
func Build(cat *catalog.Catalog, sq *models.ScopedQuery, opts Options) (*sqlast.Select, error) {
	if sq == nil || sq.Query == nil {
		return nil, apperrors.New(apperrors.KindInvalidIntent, "", "", "no query to build")
	}
	if opts.DefaultRankingLimit <= 0 {
		opts.DefaultRankingLimit = DefaultRankingLimit
	}
	q := sq.Query

	metric, err := cat.GetMetric(q.PrimaryMetric)
	if err != nil {
		return nil, err
	}

	b := &builder{
		cat:    cat,
		q:      q,
		metric: metric,
		joined: make(map[string]string),
		sel: &sqlast.Select{
			From: sqlast.TableRef{Schema: cat.Schema(), Name: metric.Table, Alias: metric.Table},
		},
	}

	if err := b.addGroupBy(); err != nil {
		return nil, err
	}
	if err := b.addMetrics(); err != nil {
		return nil, err
	}
	if err := b.addUserFilters(); err != nil {
		return nil, err
	}
	if err := b.addConstraints(sq.Constraints); err != nil {
		return nil, err
	}
	if err := b.addTimeWindow(opts.Now); err != nil {
		return nil, err
	}
	b.addOrderBy()
	b.addLimit(opts.DefaultRankingLimit)

	return b.sel, nil
}

// column returns a reference to d, joining its table on first use.
func (b *builder) column(d catalog.Dimension) (*sqlast.ColumnRef, error) {
	ref := &sqlast.ColumnRef{Table: d.Table, Column: d.Column}
	if d.Table == b.metric.Table {
		return ref, nil
	}
	if !b.cat.CanReach(b.metric.Table, d) {
		return nil, apperrors.New(apperrors.KindIncompatibleDimension, "", d.ID,
			"dimension %q cannot be joined to %s", d.ID, b.metric.Table)
	}

	if key, ok := b.joined[d.Table]; ok {
		if key != d.FactKey+"="+d.JoinKey {
			return nil, apperrors.New(apperrors.KindIncompatibleDimension, "", d.ID,
				"dimension %q needs %s joined on a different key", d.ID, d.Table)
		}
		return ref, nil
	}

	b.joined[d.Table] = d.FactKey + "=" + d.JoinKey
	b.sel.Joins = append(b.sel.Joins, &sqlast.Join{
		Kind:  sqlast.LeftJoin,
		Table: sqlast.TableRef{Schema: b.cat.Schema(), Name: d.Table, Alias: d.Table},
		On: &sqlast.Comparison{
			Left:  &sqlast.ColumnRef{Table: b.metric.Table, Column: d.FactKey},
			Op:    sqlast.OpEq,
			Right: &sqlast.ColumnRef{Table: d.Table, Column: d.JoinKey},
		},
	})
	return ref, nil
}

func (b *builder) addGroupBy() error {
	if len(b.q.GroupBy) == 0 {
		return nil
	}
	b.sel.GroupBy = &sqlast.GroupBy{}
	for _, id := range b.q.GroupBy {
		d, err := b.cat.GetDimension(id)
		if err != nil {
			return err
		}
		if !b.metric.AllowsCategory(d.Category) {
			return apperrors.New(apperrors.KindIncompatibleDimension, "group_by", id,
				"metric %q cannot be grouped by %s dimension %q", b.metric.ID, d.Category, id)
		}
		col, err := b.column(d)
		if err != nil {
			return err
		}
		b.sel.Columns = append(b.sel.Columns, sqlast.SelectItem{Expr: col, Alias: d.ID})
		b.sel.GroupBy.Exprs = append(b.sel.GroupBy.Exprs, col)
	}
	return nil
}

func (b *builder) addMetrics() error {
	for _, id := range b.q.Metrics() {
		m, err := b.cat.GetMetric(id)
		if err != nil {
			return err
		}
		if m.Table != b.metric.Table {
			return apperrors.New(apperrors.KindIncompatibleMetric, "secondary_metrics", id,
				"metric %q aggregates %s, not %s", id, m.Table, b.metric.Table)
		}
		b.sel.Columns = append(b.sel.Columns, sqlast.SelectItem{Expr: metricExpr(m), Alias: m.ID})
	}
	return nil
}

// metricExpr builds the aggregate expression. Ratios divide by NULLIF(den, 0)
// so an empty group yields NULL instead of a division error.
func metricExpr(m catalog.Metric) sqlast.Expr {
	agg := m.Aggregation
	num := aggregate(m.Table, agg.Numerator)
	if !agg.IsRatio() {
		return num
	}

	var expr sqlast.Expr = &sqlast.Arithmetic{
		Left: &sqlast.Decimal{Expr: num},
		Op:   sqlast.OpDiv,
		Right: &sqlast.NullIf{
			Expr:  aggregate(m.Table, *agg.Denominator),
			Value: &sqlast.Literal{Kind: sqlast.LiteralInteger, Value: "0"},
		},
	}
	if agg.Scale != 0 {
		expr = &sqlast.Arithmetic{
			Left:  expr,
			Op:    sqlast.OpMul,
			Right: numberLiteral(agg.Scale),
		}
	}
	return expr
}

func aggregate(table string, t catalog.AggTerm) *sqlast.Aggregate {
	out := &sqlast.Aggregate{}
	switch t.Func {
	case catalog.AggSum:
		out.Func = sqlast.Sum
	case catalog.AggCount:
		out.Func = sqlast.Count
	case catalog.AggCountDistinct:
		out.Func = sqlast.Count
		out.Distinct = true
	case catalog.AggAvg:
		out.Func = sqlast.Avg
	case catalog.AggMin:
		out.Func = sqlast.Min
	case catalog.AggMax:
		out.Func = sqlast.Max
	}
	if t.Column != "*" {
		out.Arg = &sqlast.ColumnRef{Table: table, Column: t.Column}
	}
	return out
}

func numberLiteral(f float64) *sqlast.Literal {
	if f == float64(int64(f)) {
		return &sqlast.Literal{Kind: sqlast.LiteralInteger, Value: strconv.FormatInt(int64(f), 10)}
	}
	return &sqlast.Literal{Kind: sqlast.LiteralNumber, Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func literalKind(t catalog.DataType) sqlast.LiteralKind {
	switch t {
	case catalog.TypeInteger:
		return sqlast.LiteralInteger
	case catalog.TypeNumber:
		return sqlast.LiteralNumber
	case catalog.TypeDate:
		return sqlast.LiteralDate
	case catalog.TypeBoolean:
		return sqlast.LiteralBoolean
	default:
		return sqlast.LiteralString
	}
}

func literals(t catalog.DataType, values []string) []sqlast.Expr {
	out := make([]sqlast.Expr, len(values))
	kind := literalKind(t)
	for i, v := range values {
		out[i] = &sqlast.Literal{Kind: kind, Value: v}
	}
	return out
}

func (b *builder) addUserFilters() error {
	for i, f := range b.q.Filters {
		d, err := b.cat.GetDimension(f.Dimension)
		if err != nil {
			return err
		}
		col, err := b.column(d)
		if err != nil {
			return err
		}
		pred, err := predicate(col, d, f)
		if err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
		b.sel.Where = append(b.sel.Where, &sqlast.Filter{Predicate: pred, Origin: sqlast.OriginUser, Dimension: d.ID})
	}
	return nil
}

var comparisonOps = map[models.FilterOperator]sqlast.CompareOp{
	models.OpEq:  sqlast.OpEq,
	models.OpNeq: sqlast.OpNeq,
	models.OpGt:  sqlast.OpGt,
	models.OpGte: sqlast.OpGte,
	models.OpLt:  sqlast.OpLt,
	models.OpLte: sqlast.OpLte,
}

func predicate(col *sqlast.ColumnRef, d catalog.Dimension, f models.Filter) (sqlast.Expr, error) {
	values := literals(d.DataType, f.Values)
	arity, ok := f.Operator.Arity()
	if !ok {
		return nil, apperrors.New(apperrors.KindAmbiguousFilterValue, "", d.ID, "unsupported operator %q", f.Operator)
	}
	if (arity == -1 && len(values) == 0) || (arity > 0 && len(values) != arity) {
		return nil, apperrors.New(apperrors.KindAmbiguousFilterValue, "", d.ID,
			"operator %s got %d value(s)", f.Operator, len(values))
	}

	switch f.Operator {
	case models.OpIn:
		return &sqlast.In{Expr: col, Values: values}, nil
	case models.OpNotIn:
		return &sqlast.In{Expr: col, Values: values, Negated: true}, nil
	case models.OpBetween:
		return &sqlast.Between{Expr: col, Low: values[0], High: values[1]}, nil
	}
	return &sqlast.Comparison{Left: col, Op: comparisonOps[f.Operator], Right: values[0]}, nil
}

// addConstraints appends one IN predicate per row-level constraint. A
// constraint that cannot be attached to the query denies the request.
func (b *builder) addConstraints(constraints []models.Constraint) error {
	for _, c := range constraints {
		if len(c.Values) == 0 {
			return apperrors.New(apperrors.KindAccessDenied, "scope", c.Dimension, "empty scope for %q", c.Dimension)
		}
		d, err := b.cat.GetDimension(c.Dimension)
		if err != nil {
			return err
		}
		col, err := b.column(d)
		if err != nil {
			return apperrors.New(apperrors.KindAccessDenied, "scope", c.Dimension,
				"row-level scope on %q cannot be applied to metric %q", c.Dimension, b.metric.ID)
		}
		b.sel.Where = append(b.sel.Where, &sqlast.Filter{
			Predicate: &sqlast.In{Expr: col, Values: literals(d.DataType, c.Values)},
			Origin:    sqlast.OriginPolicy,
			Dimension: d.ID,
		})
	}
	return nil
}

func (b *builder) addTimeWindow(now time.Time) error {
	tw := b.q.TimeWindow
	if tw == nil {
		return nil
	}
	if b.metric.TimeColumn == "" {
		return apperrors.New(apperrors.KindInvalidTimeWindow, "time_window", b.metric.ID,
			"metric %q has no time column", b.metric.ID)
	}
	if now.IsZero() {
		now = time.Now()
	}
	start, end, err := ResolveTimeWindow(tw, now)
	if err != nil {
		return err
	}

	col := &sqlast.ColumnRef{Table: b.metric.Table, Column: b.metric.TimeColumn}
	b.sel.Where = append(b.sel.Where,
		&sqlast.Filter{
			Predicate: &sqlast.Comparison{Left: col, Op: sqlast.OpGte, Right: &sqlast.Literal{Kind: sqlast.LiteralDate, Value: start.Format(dateLayout)}},
			Origin:    sqlast.OriginTimeWindow,
		},
		&sqlast.Filter{
			Predicate: &sqlast.Comparison{Left: col, Op: sqlast.OpLt, Right: &sqlast.Literal{Kind: sqlast.LiteralDate, Value: end.Format(dateLayout)}},
			Origin:    sqlast.OriginTimeWindow,
		},
	)
	return nil
}

// addOrderBy applies the requested sort, or the intent's default, and then
// the group-by keys ascending so that ties always come back in the same order.
func (b *builder) addOrderBy() {
	var items []sqlast.OrderItem
	var primaryKey string

	switch {
	case b.q.Sort != nil:
		primaryKey = b.q.Sort.By
		if primaryKey == "" {
			primaryKey = b.metric.ID
		}
		desc := b.q.Sort.Direction != models.SortAsc
		items = append(items, sqlast.OrderItem{Expr: &sqlast.AliasRef{Name: primaryKey}, Desc: desc})
	case b.q.Intent == models.IntentRanking:
		primaryKey = b.metric.ID
		items = append(items, sqlast.OrderItem{Expr: &sqlast.AliasRef{Name: primaryKey}, Desc: true})
	}

	for _, id := range b.q.GroupBy {
		if id == primaryKey {
			continue
		}
		items = append(items, sqlast.OrderItem{Expr: &sqlast.AliasRef{Name: id}})
	}

	if len(items) > 0 {
		b.sel.OrderBy = &sqlast.OrderBy{Items: items}
	}
}

func (b *builder) addLimit(defaultRanking int) {
	switch {
	case b.q.Limit != nil:
		b.sel.Limit = &sqlast.Limit{Count: *b.q.Limit}
	case b.q.Intent == models.IntentRanking:
		b.sel.Limit = &sqlast.Limit{Count: defaultRanking}
	}
}

// JoinedTables lists the dimension tables the statement joins, in order.
func JoinedTables(sel *sqlast.Select) []string {
	out := make([]string, 0, len(sel.Joins))
	for _, j := range sel.Joins {
		if !slices.Contains(out, j.Table.Name) {
			out = append(out, j.Table.Name)
		}
	}
	return out
}
