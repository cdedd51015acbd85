package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IsEmpty reports whether v carries no information: nil, a blank string,
// or an empty list.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case float64:
		return math.IsNaN(t)
	default:
		return false
	}
}

// Coerce converts a raw observed value into the canonical representation for
// the given field kind. The boolean is false when the value cannot represent
// that kind; callers treat that as a data outcome, not an error.
func Coerce(kind FieldKind, raw any) (any, bool) {
	switch kind {
	case KindMeasurement:
		f, ok := ToFloat(raw)
		if !ok {
			return nil, false
		}
		return f, true
	case KindGrade, KindFreeText:
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		return strings.TrimSpace(s), true
	case KindReferenceList:
		refs, ok := ToStringList(raw)
		if !ok {
			return nil, false
		}
		return refs, true
	case KindOpaque:
		return coerceOpaque(raw)
	default:
		return coerceOpaque(raw)
	}
}

func coerceOpaque(raw any) (any, bool) {
	switch t := raw.(type) {
	case string:
		return strings.TrimSpace(t), true
	case bool:
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		if f, ok := numeric(raw); ok {
			return f, true
		}
		return nil, false
	}
}

// ToFloat extracts a finite float64 from numbers or numeric strings.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		n, ok := numeric(v)
		if !ok {
			return 0, false
		}
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToStringList extracts a list of non-blank strings. A single string is split
// on semicolons, which is how catalog citations are usually concatenated.
func ToStringList(v any) ([]string, bool) {
	var out []string
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ";") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, false
	}
	if out == nil {
		out = []string{}
	}
	return out, true
}
