// Package jsonutil holds tolerant decoders for JSON produced by language models,
// which routinely emit numbers or booleans where strings were asked for.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexibleStringValue converts a scalar JSON value to its string form.
// Strings are returned unquoted, numbers keep their literal digits and
// booleans become "true"/"false". null and empty input yield "".
// Objects and arrays are returned as their raw JSON text.
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		switch t := v.(type) {
		case json.Number:
			return t.String()
		case bool:
			return fmt.Sprintf("%t", t)
		}
	}

	return string(raw)
}

// FlexibleStringList accepts either a single scalar or an array of scalars and
// returns the values as strings. null yields an empty slice. Nested arrays or
// objects inside the array are rejected.
func FlexibleStringList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] != '[' {
		if raw[0] == '{' {
			return nil, fmt.Errorf("expected scalar or array, got object")
		}
		return []string{FlexibleStringValue(raw)}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && (item[0] == '[' || item[0] == '{') {
			return nil, fmt.Errorf("element %d: nested %s not allowed", i, kindName(item[0]))
		}
		out = append(out, FlexibleStringValue(item))
	}
	return out, nil
}

func kindName(c byte) string {
	if c == '[' {
		return "array"
	}
	return "object"
}
