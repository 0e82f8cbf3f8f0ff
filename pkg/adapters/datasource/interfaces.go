// Package datasource runs compiled statements against a tenant warehouse.
// Adapters register themselves from init(); callers pick one by type name.
package datasource

import "context"

// MaxQueryLimit is the hard cap on rows returned by Query.
// This protects against unbounded results crashing the server.
const MaxQueryLimit = 1000

// QueryExecutor executes compiled SELECT statements.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a statement with positional args and returns at most limit
	// rows. Statements are never rewritten: rows past the limit are not read
	// and the result is marked Truncated.
	//
	// Limit behavior:
	//   - limit <= 0: uses MaxQueryLimit
	//   - limit > MaxQueryLimit: capped to MaxQueryLimit
	Query(ctx context.Context, statement string, args []any, limit int) (*QueryExecutionResult, error)

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// SchemaInspector lists the tables of a schema. It satisfies
// catalog.TableLister.
type SchemaInspector interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
}

// Datasource is what every adapter provides.
type Datasource interface {
	QueryExecutor
	SchemaInspector
	// Dialect is the render dialect name statements must be compiled for.
	Dialect() string
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns   []ColumnInfo     `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// EffectiveLimit applies the MaxQueryLimit rules.
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
