package sandbox

import (
	"sort"
)

// normalizeValue converts values exported from the runtime back to the
// shapes encoding/json produces: every number becomes float64 and nested
// maps and slices are rebuilt.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return normalizeMap(typed)
	case []any:
		out := make([]any, len(typed))
		for idx, item := range typed {
			out[idx] = normalizeValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for idx, item := range typed {
			out[idx] = normalizeMap(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for idx, item := range typed {
			out[idx] = item
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return out
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case int32:
		return float64(typed)
	case float32:
		return float64(typed)
	case uint64:
		return float64(typed)
	default:
		return value
	}
}

// normalizeMap applies normalizeValue in place and returns m.
func normalizeMap(m map[string]any) map[string]any {
	for key, value := range m {
		m[key] = normalizeValue(value)
	}
	return m
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
