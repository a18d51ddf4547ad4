package processing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IsEmpty reports whether value counts as "not provided": nil, blank
// strings, empty arrays and objects, and selectboxes maps with nothing
// selected.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	case map[string]any:
		if len(typed) == 0 {
			return true
		}
		for _, v := range typed {
			b, ok := v.(bool)
			if !ok || b {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToFloat coerces numeric values and numeric strings.
func ToFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// LooseEqual compares two JSON values the way form authors expect: numbers
// by value, booleans against "true"/"false", everything else by its string
// form.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		return strconv.FormatBool(ab) == Stringify(b)
	}
	if bb, ok := b.(bool); ok {
		return strconv.FormatBool(bb) == Stringify(a)
	}
	return Stringify(a) == Stringify(b)
}

// Contains reports whether a multi-value (array or selectboxes map) holds
// want.
func Contains(value, want any) bool {
	switch typed := value.(type) {
	case []any:
		for _, item := range typed {
			if LooseEqual(item, want) {
				return true
			}
		}
		return false
	case map[string]any:
		selected, ok := typed[Stringify(want)]
		if !ok {
			return false
		}
		b, isBool := selected.(bool)
		return !isBool || b
	case string:
		return strings.Contains(typed, Stringify(want))
	default:
		return LooseEqual(value, want)
	}
}

// Stringify renders scalars without the float noise fmt adds.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(value)
	}
}
