package sqlast

// Walk visits n and its children depth-first. If fn returns false the
// children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	switch v := n.(type) {
	case *Select:
		for _, item := range v.Columns {
			Walk(item.Expr, fn)
		}
		for _, j := range v.Joins {
			Walk(j, fn)
		}
		for _, f := range v.Where {
			Walk(f, fn)
		}
		if v.GroupBy != nil {
			Walk(v.GroupBy, fn)
		}
		if v.OrderBy != nil {
			Walk(v.OrderBy, fn)
		}
		if v.Limit != nil {
			Walk(v.Limit, fn)
		}
	case *Join:
		if v.On != nil {
			Walk(v.On, fn)
		}
	case *Filter:
		Walk(v.Predicate, fn)
	case *GroupBy:
		for _, e := range v.Exprs {
			Walk(e, fn)
		}
	case *OrderBy:
		for _, item := range v.Items {
			Walk(item.Expr, fn)
		}
	case *Aggregate:
		if v.Arg != nil {
			Walk(v.Arg, fn)
		}
	case *Comparison:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *In:
		Walk(v.Expr, fn)
		for _, e := range v.Values {
			Walk(e, fn)
		}
	case *Between:
		Walk(v.Expr, fn)
		Walk(v.Low, fn)
		Walk(v.High, fn)
	case *Arithmetic:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *NullIf:
		Walk(v.Expr, fn)
		Walk(v.Value, fn)
	case *Decimal:
		Walk(v.Expr, fn)
	}
}

// Tables returns the From table followed by every joined table.
func (s *Select) Tables() []TableRef {
	out := make([]TableRef, 0, 1+len(s.Joins))
	out = append(out, s.From)
	for _, j := range s.Joins {
		out = append(out, j.Table)
	}
	return out
}

// Literals returns every literal in the statement in visiting order.
func Literals(n Node) []*Literal {
	var out []*Literal
	Walk(n, func(n Node) bool {
		if lit, ok := n.(*Literal); ok {
			out = append(out, lit)
		}
		return true
	})
	return out
}
