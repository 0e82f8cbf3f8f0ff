package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the query pipeline. Every structured error wraps exactly
// one of these so callers can branch with errors.Is.
var (
	ErrUnknownMetric         = errors.New("unknown metric")
	ErrUnknownDimension      = errors.New("unknown dimension")
	ErrIncompatibleDimension = errors.New("incompatible dimension")
	ErrIncompatibleMetric    = errors.New("incompatible metric")
	ErrInvalidTimeWindow     = errors.New("invalid time window")
	ErrUnmappedToken         = errors.New("unmapped token")
	ErrAmbiguousFilterValue  = errors.New("ambiguous filter value")
	ErrCatalogLoad           = errors.New("catalog load error")
	ErrInvalidIntent         = errors.New("invalid intent")
	ErrAccessDenied          = errors.New("access denied")
	ErrUnknownTenant         = errors.New("unknown tenant")
	ErrUnsupportedNode       = errors.New("unsupported AST node")
	ErrOutOfScope            = errors.New("question out of scope")
)

// Kind is the stable, machine-readable name of an error class. It is what
// the HTTP layer and audit log report.
type Kind string

const (
	KindUnknownMetric         Kind = "unknown_metric"
	KindUnknownDimension      Kind = "unknown_dimension"
	KindIncompatibleDimension Kind = "incompatible_dimension"
	KindIncompatibleMetric    Kind = "incompatible_metric"
	KindInvalidTimeWindow     Kind = "invalid_time_window"
	KindUnmappedToken         Kind = "unmapped_token"
	KindAmbiguousFilterValue  Kind = "ambiguous_filter_value"
	KindCatalogLoad           Kind = "catalog_load_error"
	KindInvalidIntent         Kind = "invalid_intent"
	KindAccessDenied          Kind = "access_denied"
	KindUnknownTenant         Kind = "unknown_tenant"
	KindOutOfScope            Kind = "out_of_scope"
	KindInternal              Kind = "internal"
)

var kindSentinels = map[Kind]error{
	KindUnknownMetric:         ErrUnknownMetric,
	KindUnknownDimension:      ErrUnknownDimension,
	KindIncompatibleDimension: ErrIncompatibleDimension,
	KindIncompatibleMetric:    ErrIncompatibleMetric,
	KindInvalidTimeWindow:     ErrInvalidTimeWindow,
	KindUnmappedToken:         ErrUnmappedToken,
	KindAmbiguousFilterValue:  ErrAmbiguousFilterValue,
	KindCatalogLoad:           ErrCatalogLoad,
	KindInvalidIntent:         ErrInvalidIntent,
	KindAccessDenied:          ErrAccessDenied,
	KindUnknownTenant:         ErrUnknownTenant,
	KindOutOfScope:            ErrOutOfScope,
}

// Error is a request-level rejection. Field is the intent path that caused it
// (e.g. "group_by[1]"), Identifier the offending name or token.
type Error struct {
	Kind       Kind   `json:"kind"`
	Field      string `json:"field,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Message    string `json:"message"`
}

// New builds a structured error of the given kind.
func New(kind Kind, field, identifier, format string, args ...any) *Error {
	return &Error{
		Kind:       kind,
		Field:      field,
		Identifier: identifier,
		Message:    fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Unwrap exposes the sentinel for errors.Is.
func (e *Error) Unwrap() error {
	return kindSentinels[e.Kind]
}

// KindOf reports the kind of the first structured error in err's tree.
// Plain sentinels are mapped to their kind; anything else is internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
