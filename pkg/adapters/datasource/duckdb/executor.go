// Package duckdb is the DuckDB datasource adapter. It serves local
// warehouse files and in-memory databases for development and tests.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// Executor runs statements against a DuckDB database.
type Executor struct {
	db *sql.DB
}

// NewExecutor opens the database at cfg.DSN; empty means in-memory.
func NewExecutor(_ context.Context, cfg datasource.Config) (*Executor, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// An in-memory database exists per connection; keep exactly one.
	if cfg.DSN == "" {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	return &Executor{db: db}, nil
}

// DB exposes the handle for seeding and maintenance.
func (e *Executor) DB() *sql.DB { return e.db }

// Query runs a parameterized statement. Placeholders are "?".
func (e *Executor) Query(ctx context.Context, statement string, args []any, limit int) (*datasource.QueryExecutionResult, error) {
	rows, err := e.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return datasource.CollectSQLRows(rows, limit)
}

// ListTables returns the base tables of schema.
func (e *Executor) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	return datasource.CollectStrings(rows)
}

// Ping verifies the database is open.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Dialect implements datasource.Datasource.
func (e *Executor) Dialect() string { return "duckdb" }

// Close closes the database.
func (e *Executor) Close() error {
	return e.db.Close()
}

var _ datasource.Datasource = (*Executor)(nil)
