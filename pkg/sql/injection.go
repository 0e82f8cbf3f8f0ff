package sql

import libinjection "github.com/corazawaf/libinjection-go"

// InjectionCheckResult describes a filter value that libinjection flagged.
type InjectionCheckResult struct {
	Field       string // intent path of the value, e.g. filters[0].values[1]
	Dimension   string
	Value       string
	Fingerprint string
}

// CheckValueForInjection runs libinjection over one filter value. It returns
// nil when the value looks clean.
//
// Filter values never reach SQL as text (they are bound or escaped by the
// renderer), so a hit is not a vulnerability. It is a strong sign that the
// extractor's output was tampered with and is reported as a security event.
//
// Example:
//
//	CheckValueForInjection("filters[0].values[0]", "state_name", "Karnataka")
//	// nil
//
//	r := CheckValueForInjection("filters[0].values[0]", "state_name", "x' OR '1'='1")
//	// r.Fingerprint == "s&sos" (or similar)
func CheckValueForInjection(field, dimension, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Dimension:   dimension,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}
