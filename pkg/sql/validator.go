// Package sql holds checks applied to SQL text at the edges of the pipeline:
// libinjection checks on filter values going in, and structural checks on the
// rendered statement going out.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the text contains more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrNotSelect indicates the statement is not a plain SELECT.
	ErrNotSelect = errors.New("only a single SELECT statement may be produced")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the
// trailing semicolon. It is dialect-neutral and runs on every rendered
// statement before it is handed to an executor.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideQuotes(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	if !startsWithSelect(normalized) {
		return ValidationResult{Error: ErrNotSelect}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

func startsWithSelect(sqlQuery string) bool {
	fields := strings.Fields(sqlQuery)
	return len(fields) > 0 && strings.EqualFold(fields[0], "SELECT")
}

// hasSemicolonOutsideQuotes reports a semicolon outside string literals and
// quoted identifiers. Doubled quotes inside a literal close and immediately
// reopen it, which keeps the state correct.
func hasSemicolonOutsideQuotes(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBracket
	)

	state := stateNormal
	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '[':
				state = stateBracket
			}
		case stateSingleQuote:
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		case stateBracket:
			if char == ']' {
				state = stateNormal
			}
		}
	}
	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
