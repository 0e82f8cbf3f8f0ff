package sql

import (
	"fmt"
	"strconv"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Predicate is one top-level conjunct of a WHERE clause in the simple shapes
// the renderer emits: column <op> value, column IN (...), column BETWEEN a
// AND b. Values hold literal text or "$n" for bind parameters.
type Predicate struct {
	Table    string
	Column   string
	Operator string
	Values   []string
}

// VerifySingleSelect parses PostgreSQL text and checks it is exactly one
// SELECT without INTO.
func VerifySingleSelect(sqlQuery string) error {
	_, err := parseSelect(sqlQuery)
	return err
}

// ReferencedTables returns every table in the FROM clause, including joined
// ones, as schema.table (or just table when unqualified), in order.
func ReferencedTables(sqlQuery string) ([]string, error) {
	sel, err := parseSelect(sqlQuery)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range sel.FromClause {
		collectTables(n, &out)
	}
	return out, nil
}

func collectTables(n *pg_query.Node, out *[]string) {
	if n == nil {
		return
	}
	if rv := n.GetRangeVar(); rv != nil {
		name := rv.Relname
		if rv.Schemaname != "" {
			name = rv.Schemaname + "." + name
		}
		*out = append(*out, name)
		return
	}
	if j := n.GetJoinExpr(); j != nil {
		collectTables(j.Larg, out)
		collectTables(j.Rarg, out)
	}
}

// WherePredicates returns the top-level AND conjuncts of the statement's
// WHERE clause. Conjuncts of any other shape are reported with an empty
// Column so callers can still count them.
func WherePredicates(sqlQuery string) ([]Predicate, error) {
	sel, err := parseSelect(sqlQuery)
	if err != nil {
		return nil, err
	}
	if sel.WhereClause == nil {
		return nil, nil
	}

	var conjuncts []*pg_query.Node
	flattenAnd(sel.WhereClause, &conjuncts)

	out := make([]Predicate, 0, len(conjuncts))
	for _, c := range conjuncts {
		out = append(out, toPredicate(c))
	}
	return out, nil
}

func parseSelect(sqlQuery string) (*pg_query.SelectStmt, error) {
	tree, err := pg_query.Parse(sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("parse rendered sql: %w", err)
	}
	if len(tree.Stmts) != 1 {
		return nil, ErrMultipleStatements
	}
	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil || sel.IntoClause != nil {
		return nil, ErrNotSelect
	}
	return sel, nil
}

func flattenAnd(n *pg_query.Node, out *[]*pg_query.Node) {
	if b := n.GetBoolExpr(); b != nil && b.Boolop == pg_query.BoolExprType_AND_EXPR {
		for _, arg := range b.Args {
			flattenAnd(arg, out)
		}
		return
	}
	*out = append(*out, n)
}

func toPredicate(n *pg_query.Node) Predicate {
	e := n.GetAExpr()
	if e == nil {
		return Predicate{}
	}

	p := Predicate{Operator: operatorName(e)}
	if ref := e.Lexpr.GetColumnRef(); ref != nil {
		parts := make([]string, 0, len(ref.Fields))
		for _, f := range ref.Fields {
			if s := f.GetString_(); s != nil {
				parts = append(parts, s.Sval)
			}
		}
		switch len(parts) {
		case 1:
			p.Column = parts[0]
		case 0:
		default:
			p.Table = parts[len(parts)-2]
			p.Column = parts[len(parts)-1]
		}
	}

	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_IN, pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		if list := e.Rexpr.GetList(); list != nil {
			for _, item := range list.Items {
				p.Values = append(p.Values, constText(item))
			}
		}
	default:
		p.Values = []string{constText(e.Rexpr)}
	}
	return p
}

func operatorName(e *pg_query.A_Expr) string {
	var op string
	if len(e.Name) > 0 {
		if s := e.Name[0].GetString_(); s != nil {
			op = s.Sval
		}
	}
	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_IN:
		if op == "<>" {
			return "NOT IN"
		}
		return "IN"
	case pg_query.A_Expr_Kind_AEXPR_BETWEEN:
		return "BETWEEN"
	case pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		return "NOT BETWEEN"
	}
	return op
}

func constText(n *pg_query.Node) string {
	if n == nil {
		return ""
	}
	if tc := n.GetTypeCast(); tc != nil {
		return constText(tc.Arg)
	}
	if pr := n.GetParamRef(); pr != nil {
		return "$" + strconv.Itoa(int(pr.Number))
	}
	c := n.GetAConst()
	if c == nil {
		return ""
	}
	switch {
	case c.Isnull:
		return "NULL"
	case c.GetSval() != nil:
		return c.GetSval().Sval
	case c.GetIval() != nil:
		return strconv.Itoa(int(c.GetIval().Ival))
	case c.GetFval() != nil:
		return c.GetFval().Fval
	case c.GetBoolval() != nil:
		return strconv.FormatBool(c.GetBoolval().Boolval)
	}
	return ""
}
