package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Dialect names accepted by Lookup.
const (
	DialectPostgres  = "postgres"
	DialectSQLServer = "sqlserver"
	DialectDuckDB    = "duckdb"
)

// Dialect supplies the syntax that differs between target databases.
// Implementations are stateless.
type Dialect interface {
	Name() string
	// QuoteIdent quotes one identifier part.
	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the n-th argument, 1-based.
	Placeholder(n int) string
	StringLiteral(s string) string
	DateLiteral(t time.Time) string
	BoolLiteral(b bool) string
	// DecimalType is the cast target that keeps division from truncating.
	DecimalType() string
	// Top is written directly after SELECT; Limit after ORDER BY. A dialect
	// returns "" from the one it does not use.
	Top(n int) string
	Limit(n int) string
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DialectPostgres, "postgresql", "pg":
		return Postgres{}, nil
	case DialectSQLServer, "mssql":
		return SQLServer{}, nil
	case DialectDuckDB:
		return DuckDB{}, nil
	}
	return nil, fmt.Errorf("unsupported SQL dialect %q", name)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Postgres renders PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string { return DialectPostgres }

func (Postgres) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) StringLiteral(s string) string { return quoteString(s) }

func (Postgres) DateLiteral(t time.Time) string { return "DATE '" + t.Format(dateLayout) + "'" }

func (Postgres) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (Postgres) DecimalType() string { return "NUMERIC" }

func (Postgres) Top(int) string { return "" }

func (Postgres) Limit(n int) string { return "LIMIT " + strconv.Itoa(n) }

// SQLServer renders Transact-SQL.
type SQLServer struct{}

func (SQLServer) Name() string { return DialectSQLServer }

func (SQLServer) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (SQLServer) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (SQLServer) StringLiteral(s string) string { return "N" + quoteString(s) }

func (SQLServer) DateLiteral(t time.Time) string {
	return "CAST('" + t.Format(dateLayout) + "' AS DATE)"
}

func (SQLServer) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (SQLServer) DecimalType() string { return "DECIMAL(38, 6)" }

func (SQLServer) Top(n int) string { return "TOP (" + strconv.Itoa(n) + ")" }

func (SQLServer) Limit(int) string { return "" }

// DuckDB renders DuckDB SQL.
type DuckDB struct{}

func (DuckDB) Name() string { return DialectDuckDB }

func (DuckDB) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (DuckDB) Placeholder(int) string { return "?" }

func (DuckDB) StringLiteral(s string) string { return quoteString(s) }

func (DuckDB) DateLiteral(t time.Time) string { return "DATE '" + t.Format(dateLayout) + "'" }

func (DuckDB) BoolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (DuckDB) DecimalType() string { return "DOUBLE" }

func (DuckDB) Top(int) string { return "" }

func (DuckDB) Limit(n int) string { return "LIMIT " + strconv.Itoa(n) }
