// Package mssql is the Microsoft SQL Server datasource adapter.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// Executor runs statements over database/sql with the go-mssqldb driver.
// Compiled statements use @p1..@pn placeholders, which the driver binds
// positionally.
type Executor struct {
	db *sql.DB
}

// NewExecutor opens a connection pool. The DSN is a sqlserver:// URL.
func NewExecutor(_ context.Context, cfg datasource.Config) (*Executor, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql server: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	return &Executor{db: db}, nil
}

// Query runs a parameterized statement.
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
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	return datasource.CollectStrings(rows)
}

// Ping verifies the server is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Dialect implements datasource.Datasource.
func (e *Executor) Dialect() string { return "sqlserver" }

// Close closes the pool.
func (e *Executor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

var _ datasource.Datasource = (*Executor)(nil)
