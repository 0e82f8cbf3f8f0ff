// Package render serializes a sqlast.Select into SQL text for one dialect.
// Rendering is a pure function of the tree, the dialect and the options: the
// same input always produces byte-identical output.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/sql"
	"github.com/ekaya-inc/ekaya-insights/pkg/sqlast"
)

const dateLayout = "2006-01-02"

// Options controls rendering.
type Options struct {
	// Parameterize binds WHERE clause values as arguments instead of writing
	// them inline. Constants in the select list are always inlined.
	Parameterize bool
}

// Statement is rendered SQL plus its bind arguments, in placeholder order.
type Statement struct {
	SQL     string
	Args    []any
	Dialect string
}

// Render writes sel in dialect d. Every output must be a single SELECT;
// Postgres output is additionally parsed back.
func Render(sel *sqlast.Select, d Dialect, opts Options) (*Statement, error) {
	if sel == nil {
		return nil, fmt.Errorf("render: %w: nil statement", apperrors.ErrUnsupportedNode)
	}
	r := &renderer{d: d, opts: opts}
	if err := r.formatSelect(sel); err != nil {
		return nil, err
	}

	stmt := &Statement{SQL: r.buf.String(), Args: r.args, Dialect: d.Name()}
	if res := sql.ValidateAndNormalize(stmt.SQL); res.Error != nil {
		return nil, fmt.Errorf("render: output failed verification: %w", res.Error)
	}
	if d.Name() == DialectPostgres {
		if err := sql.VerifySingleSelect(stmt.SQL); err != nil {
			return nil, fmt.Errorf("render: output failed verification: %w", err)
		}
	}
	return stmt, nil
}

type renderer struct {
	d    Dialect
	opts Options
	buf  strings.Builder
	args []any
	bind bool // true while writing WHERE
}

func (r *renderer) write(s string) {
	r.buf.WriteString(s)
}

func (r *renderer) commaSep(n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if i > 0 {
			r.write(", ")
		}
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) formatSelect(sel *sqlast.Select) error {
	if len(sel.Columns) == 0 {
		return fmt.Errorf("render: %w: select list is empty", apperrors.ErrUnsupportedNode)
	}
	if sel.From.Schema == "" {
		return fmt.Errorf("render: table %q is not schema-qualified", sel.From.Name)
	}

	r.write("SELECT ")
	if sel.Limit != nil {
		if top := r.d.Top(sel.Limit.Count); top != "" {
			r.write(top)
			r.write(" ")
		}
	}
	err := r.commaSep(len(sel.Columns), func(i int) error {
		item := sel.Columns[i]
		if err := r.formatExpr(item.Expr); err != nil {
			return err
		}
		if item.Alias != "" {
			r.write(" AS ")
			r.write(r.d.QuoteIdent(item.Alias))
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.write(" FROM ")
	r.formatTable(sel.From)

	for _, j := range sel.Joins {
		if err := r.formatJoin(j); err != nil {
			return err
		}
	}

	if len(sel.Where) > 0 {
		r.write(" WHERE ")
		r.bind = r.opts.Parameterize
		for i, f := range sel.Where {
			if i > 0 {
				r.write(" AND ")
			}
			if err := r.formatExpr(f.Predicate); err != nil {
				return err
			}
		}
		r.bind = false
	}

	if sel.GroupBy != nil && len(sel.GroupBy.Exprs) > 0 {
		r.write(" GROUP BY ")
		err := r.commaSep(len(sel.GroupBy.Exprs), func(i int) error {
			return r.formatExpr(sel.GroupBy.Exprs[i])
		})
		if err != nil {
			return err
		}
	}

	if sel.OrderBy != nil && len(sel.OrderBy.Items) > 0 {
		r.write(" ORDER BY ")
		err := r.commaSep(len(sel.OrderBy.Items), func(i int) error {
			item := sel.OrderBy.Items[i]
			if err := r.formatExpr(item.Expr); err != nil {
				return err
			}
			if item.Desc {
				r.write(" DESC")
			} else {
				r.write(" ASC")
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if sel.Limit != nil {
		if sel.Limit.Count < 1 {
			return fmt.Errorf("render: invalid limit %d", sel.Limit.Count)
		}
		if limit := r.d.Limit(sel.Limit.Count); limit != "" {
			r.write(" ")
			r.write(limit)
		}
	}
	return nil
}

func (r *renderer) formatTable(t sqlast.TableRef) {
	r.write(r.d.QuoteIdent(t.Schema))
	r.write(".")
	r.write(r.d.QuoteIdent(t.Name))
	if t.Alias != "" {
		r.write(" AS ")
		r.write(r.d.QuoteIdent(t.Alias))
	}
}

func (r *renderer) formatJoin(j *sqlast.Join) error {
	if j.Kind != sqlast.LeftJoin {
		return fmt.Errorf("render: %w: join kind %d", apperrors.ErrUnsupportedNode, j.Kind)
	}
	if j.Table.Schema == "" {
		return fmt.Errorf("render: table %q is not schema-qualified", j.Table.Name)
	}
	r.write(" LEFT JOIN ")
	r.formatTable(j.Table)
	r.write(" ON ")
	return r.formatExpr(j.On)
}

func (r *renderer) formatExpr(e sqlast.Expr) error {
	switch expr := e.(type) {
	case *sqlast.ColumnRef:
		r.write(r.d.QuoteIdent(expr.Table))
		r.write(".")
		r.write(r.d.QuoteIdent(expr.Column))
	case *sqlast.AliasRef:
		r.write(r.d.QuoteIdent(expr.Name))
	case *sqlast.Literal:
		return r.formatLiteral(expr)
	case *sqlast.Aggregate:
		return r.formatAggregate(expr)
	case *sqlast.Comparison:
		if err := r.formatExpr(expr.Left); err != nil {
			return err
		}
		r.write(" " + string(expr.Op) + " ")
		return r.formatExpr(expr.Right)
	case *sqlast.In:
		return r.formatIn(expr)
	case *sqlast.Between:
		if err := r.formatExpr(expr.Expr); err != nil {
			return err
		}
		r.write(" BETWEEN ")
		if err := r.formatExpr(expr.Low); err != nil {
			return err
		}
		r.write(" AND ")
		return r.formatExpr(expr.High)
	case *sqlast.Arithmetic:
		if err := r.formatOperand(expr.Left); err != nil {
			return err
		}
		r.write(" " + string(expr.Op) + " ")
		return r.formatOperand(expr.Right)
	case *sqlast.NullIf:
		r.write("NULLIF(")
		if err := r.formatExpr(expr.Expr); err != nil {
			return err
		}
		r.write(", ")
		if err := r.formatExpr(expr.Value); err != nil {
			return err
		}
		r.write(")")
	case *sqlast.Decimal:
		r.write("CAST(")
		if err := r.formatExpr(expr.Expr); err != nil {
			return err
		}
		r.write(" AS " + r.d.DecimalType() + ")")
	default:
		return fmt.Errorf("render: %w: %T", apperrors.ErrUnsupportedNode, e)
	}
	return nil
}

// formatOperand parenthesizes nested arithmetic so precedence never depends
// on the dialect.
func (r *renderer) formatOperand(e sqlast.Expr) error {
	if _, ok := e.(*sqlast.Arithmetic); ok {
		r.write("(")
		if err := r.formatExpr(e); err != nil {
			return err
		}
		r.write(")")
		return nil
	}
	return r.formatExpr(e)
}

func (r *renderer) formatAggregate(a *sqlast.Aggregate) error {
	switch a.Func {
	case sqlast.Sum, sqlast.Count, sqlast.Avg, sqlast.Min, sqlast.Max:
	default:
		return fmt.Errorf("render: %w: aggregate %q", apperrors.ErrUnsupportedNode, a.Func)
	}
	r.write(string(a.Func))
	r.write("(")
	if a.Arg == nil {
		if a.Func != sqlast.Count || a.Distinct {
			return fmt.Errorf("render: %w: %s without argument", apperrors.ErrUnsupportedNode, a.Func)
		}
		r.write("*)")
		return nil
	}
	if a.Distinct {
		r.write("DISTINCT ")
	}
	if err := r.formatExpr(a.Arg); err != nil {
		return err
	}
	r.write(")")
	return nil
}

func (r *renderer) formatIn(in *sqlast.In) error {
	if len(in.Values) == 0 {
		return fmt.Errorf("render: %w: empty IN list", apperrors.ErrUnsupportedNode)
	}
	if err := r.formatExpr(in.Expr); err != nil {
		return err
	}
	if in.Negated {
		r.write(" NOT IN (")
	} else {
		r.write(" IN (")
	}
	err := r.commaSep(len(in.Values), func(i int) error {
		return r.formatExpr(in.Values[i])
	})
	if err != nil {
		return err
	}
	r.write(")")
	return nil
}

// formatLiteral parses the literal's text according to its kind and either
// binds the typed value or writes a freshly formatted constant. The original
// text is never copied into the output except through StringLiteral.
func (r *renderer) formatLiteral(lit *sqlast.Literal) error {
	value, err := parseLiteral(lit)
	if err != nil {
		return err
	}

	if r.bind {
		r.args = append(r.args, value)
		r.write(r.d.Placeholder(len(r.args)))
		return nil
	}

	switch v := value.(type) {
	case string:
		r.write(r.d.StringLiteral(v))
	case int64:
		r.write(strconv.FormatInt(v, 10))
	case float64:
		r.write(strconv.FormatFloat(v, 'f', -1, 64))
	case time.Time:
		r.write(r.d.DateLiteral(v))
	case bool:
		r.write(r.d.BoolLiteral(v))
	}
	return nil
}

func parseLiteral(lit *sqlast.Literal) (any, error) {
	bad := func() error {
		return apperrors.New(apperrors.KindAmbiguousFilterValue, "", "", "cannot render %q as a literal", lit.Value)
	}
	switch lit.Kind {
	case sqlast.LiteralString:
		if strings.ContainsRune(lit.Value, 0) {
			return nil, bad()
		}
		return lit.Value, nil
	case sqlast.LiteralInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(lit.Value), 10, 64)
		if err != nil {
			return nil, bad()
		}
		return n, nil
	case sqlast.LiteralNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, bad()
		}
		return f, nil
	case sqlast.LiteralDate:
		t, err := time.Parse(dateLayout, strings.TrimSpace(lit.Value))
		if err != nil {
			return nil, bad()
		}
		return t, nil
	case sqlast.LiteralBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(lit.Value))
		if err != nil {
			return nil, bad()
		}
		return b, nil
	}
	return nil, fmt.Errorf("render: %w: literal kind %d", apperrors.ErrUnsupportedNode, lit.Kind)
}
