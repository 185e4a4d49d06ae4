package operator

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// defaultTolerance is the epsilon for math and financial equality checks,
// overridable per condition via value.tolerance.
const defaultTolerance = 1e-9

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func toList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func toFloatList(v any) ([]float64, bool) {
	l, ok := toList(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(l))
	for i, e := range l {
		f, ok := toFloat(e)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// timeLayouts are the accepted ISO-8601 shapes, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	default:
		// Numeric values are Unix seconds.
		if f, ok := toFloat(v); ok {
			return time.Unix(int64(f), 0).UTC(), true
		}
		return time.Time{}, false
	}
}

// resolveTimeTarget interprets a temporal target: a literal timestamp,
// the string "now", or a dotted path into the context.
func resolveTimeTarget(target any, ctx *contracts.Context, now time.Time) (time.Time, bool) {
	s, isString := target.(string)
	if isString {
		if s == "now" {
			return now, true
		}
		if ts, ok := toTime(s); ok {
			return ts, true
		}
		if ctx != nil {
			if v, ok := ctx.Resolve(s); ok {
				return toTime(v)
			}
		}
		return time.Time{}, false
	}
	return toTime(target)
}

// strictEqual compares two values with strict typing: numerics compare
// numerically, other kinds must match in type and structure. No coercion.
func strictEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if _, ok := toFloat(b); ok {
		return false
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	case nil:
		return b == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}

// order compares for lt/lte/gt/gte: numerics numerically, strings
// lexicographically, timestamps chronologically at second resolution.
// Mismatched non-numeric types are unordered.
func order(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		if ta, ok := toTime(sa); ok {
			if tb, ok := toTime(sb); ok {
				ta, tb = ta.Truncate(time.Second), tb.Truncate(time.Second)
				switch {
				case ta.Before(tb):
					return -1, true
				case ta.After(tb):
					return 1, true
				default:
					return 0, true
				}
			}
		}
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// canonicalKey renders a value into a comparable string for set
// semantics; numbers collapse to their shortest canonical form.
func canonicalKey(v any) string {
	s, err := canonicalize.JCSString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}

// comparisonKeys are the threshold keys accepted inside map-shaped values.
var comparisonKeys = []string{"eq", "ne", "lt", "lte", "gt", "gte"}

// compareWithSpec checks a computed number against a scalar (equality
// within tolerance) or a map of comparison thresholds, all of which must
// hold.
func compareWithSpec(x float64, value any, tolerance float64) bool {
	if m, ok := toMap(value); ok {
		matched := false
		for _, key := range comparisonKeys {
			raw, present := m[key]
			if !present {
				continue
			}
			threshold, ok := toFloat(raw)
			if !ok {
				return false
			}
			matched = true
			if !compareOne(x, key, threshold, tolerance) {
				return false
			}
		}
		return matched
	}
	expected, ok := toFloat(value)
	if !ok {
		return false
	}
	return math.Abs(x-expected) <= tolerance
}

func compareOne(x float64, op string, threshold, tolerance float64) bool {
	switch op {
	case "eq":
		return math.Abs(x-threshold) <= tolerance
	case "ne":
		return math.Abs(x-threshold) > tolerance
	case "lt":
		return x < threshold
	case "lte":
		return x <= threshold
	case "gt":
		return x > threshold
	case "gte":
		return x >= threshold
	default:
		return false
	}
}

// toleranceFrom extracts value.tolerance when the value is map-shaped.
func toleranceFrom(value any) float64 {
	if m, ok := toMap(value); ok {
		if t, ok := toFloat(m["tolerance"]); ok && t > 0 {
			return t
		}
	}
	return defaultTolerance
}

func requireMapKeys(value any, keys ...string) error {
	m, ok := toMap(value)
	if !ok {
		return fmt.Errorf("value must be an object with keys %v", keys)
	}
	for _, k := range keys {
		if _, present := m[k]; !present {
			return fmt.Errorf("value missing required key %q", k)
		}
	}
	return nil
}
