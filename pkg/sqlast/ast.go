// Package sqlast is the dialect-neutral syntax tree of the one statement
// shape the pipeline produces: an aggregate SELECT over a fact table with
// LEFT JOINs, a conjunctive WHERE, GROUP BY, ORDER BY and LIMIT.
//
// The node set is closed. Every node implements an unexported marker method,
// so only this package can add node types and the renderer's type switches
// cover them all.
package sqlast

// Node is the base interface for all AST nodes.
type Node interface {
	node()
}

// Expr is a marker interface for expression nodes.
type Expr interface {
	Node
	exprNode()
}

// === Statement and clauses ===

// Select is the root of every query.
type Select struct {
	Columns []SelectItem
	From    TableRef
	Joins   []*Join
	Where   []*Filter // conjunction
	GroupBy *GroupBy
	OrderBy *OrderBy
	Limit   *Limit
}

func (*Select) node() {}

// SelectItem is one output column.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// TableRef is a schema-qualified table with its alias.
type TableRef struct {
	Schema string
	Name   string
	Alias  string
}

// JoinKind enumerates supported joins.
type JoinKind int

const (
	LeftJoin JoinKind = iota
)

// Join attaches a dimension table.
type Join struct {
	Kind  JoinKind
	Table TableRef
	On    *Comparison
}

func (*Join) node() {}

// FilterOrigin records why a predicate is in the WHERE clause.
type FilterOrigin int

const (
	OriginUser FilterOrigin = iota
	OriginPolicy
	OriginTimeWindow
)

func (o FilterOrigin) String() string {
	switch o {
	case OriginPolicy:
		return "policy"
	case OriginTimeWindow:
		return "time_window"
	default:
		return "user"
	}
}

// Filter is one conjunct of the WHERE clause.
type Filter struct {
	Predicate Expr
	Origin    FilterOrigin
	Dimension string // catalog dimension the predicate constrains, if any
}

func (*Filter) node() {}

// GroupBy lists grouping expressions.
type GroupBy struct {
	Exprs []Expr
}

func (*GroupBy) node() {}

// OrderBy lists sort keys, most significant first.
type OrderBy struct {
	Items []OrderItem
}

func (*OrderBy) node() {}

// OrderItem is one sort key.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Limit caps the number of rows.
type Limit struct {
	Count int
}

func (*Limit) node() {}

// === Expressions ===

// ColumnRef is a column qualified by a table alias.
type ColumnRef struct {
	Table  string
	Column string
}

func (*ColumnRef) node()     {}
func (*ColumnRef) exprNode() {}

// AliasRef refers to an output column by its alias, for ORDER BY.
type AliasRef struct {
	Name string
}

func (*AliasRef) node()     {}
func (*AliasRef) exprNode() {}

// LiteralKind is the type of a literal value.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInteger
	LiteralNumber
	LiteralDate
	LiteralBoolean
)

// Literal is a constant. Value is text; the renderer parses it according to
// Kind and either binds it or re-formats it, never splicing it verbatim.
type Literal struct {
	Kind  LiteralKind
	Value string
}

func (*Literal) node()     {}
func (*Literal) exprNode() {}

// AggFunc is an aggregate function.
type AggFunc string

const (
	Sum   AggFunc = "SUM"
	Count AggFunc = "COUNT"
	Avg   AggFunc = "AVG"
	Min   AggFunc = "MIN"
	Max   AggFunc = "MAX"
)

// Aggregate is FUNC([DISTINCT] arg). A nil Arg means COUNT(*).
type Aggregate struct {
	Func     AggFunc
	Distinct bool
	Arg      Expr
}

func (*Aggregate) node()     {}
func (*Aggregate) exprNode() {}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNeq CompareOp = "<>"
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
)

// Comparison is left op right.
type Comparison struct {
	Left  Expr
	Op    CompareOp
	Right Expr
}

func (*Comparison) node()     {}
func (*Comparison) exprNode() {}

// In is expr [NOT] IN (values...).
type In struct {
	Expr    Expr
	Values  []Expr
	Negated bool
}

func (*In) node()     {}
func (*In) exprNode() {}

// Between is expr BETWEEN low AND high.
type Between struct {
	Expr Expr
	Low  Expr
	High Expr
}

func (*Between) node()     {}
func (*Between) exprNode() {}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// Arithmetic is left op right.
type Arithmetic struct {
	Left  Expr
	Op    ArithOp
	Right Expr
}

func (*Arithmetic) node()     {}
func (*Arithmetic) exprNode() {}

// NullIf is NULLIF(expr, value).
type NullIf struct {
	Expr  Expr
	Value Expr
}

func (*NullIf) node()     {}
func (*NullIf) exprNode() {}

// Decimal casts an expression to the dialect's exact numeric type so that a
// ratio of integer sums is not truncated.
type Decimal struct {
	Expr Expr
}

func (*Decimal) node()     {}
func (*Decimal) exprNode() {}
