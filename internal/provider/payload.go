package provider

import (
	"strconv"
	"strings"
)

// Record is one decoded result object from a vendor response. Vendors disagree
// on field names for the same data, so accessors take a fallback list of keys
// and every name-dependent read funnels through here.
type Record map[string]any

// Str returns the first non-empty string value among keys.
func (r Record) Str(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

// Bool returns the first boolean value among keys, or false.
func (r Record) Bool(keys ...string) bool {
	for _, k := range keys {
		if b, ok := r[k].(bool); ok {
			return b
		}
	}
	return false
}

// Sub returns the nested object at key, or nil.
func (r Record) Sub(key string) Record {
	if m, ok := r[key].(map[string]any); ok {
		return Record(m)
	}
	return nil
}

// List returns the array of objects at key. Non-object elements are skipped.
func (r Record) List(key string) []Record {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
