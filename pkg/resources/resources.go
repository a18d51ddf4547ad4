// Package resources provides the stores hosts plug into the validator's
// database capability: resource definitions for datatable dereferencing,
// stored submissions for uniqueness checks and component data sources.
//
// Three backends are available: Memory for tests and embedded use, SQLite
// for a single node service, and HTTP for a remote Form.io compatible API.
package resources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// Store is what every backend implements.
type Store interface {
	processing.ResourceLoader
	processing.UniqueChecker
	sandbox.Fetcher
}

// ErrUnsupportedSource is returned by Fetch for data sources a store cannot
// serve.
var ErrUnsupportedSource = errors.New("resources: unsupported data source")

// FormKey is the key submissions are filed under: the form id, then its
// path, then its name.
func FormKey(f *form.Form) string {
	if f == nil {
		return ""
	}
	for _, candidate := range []string{f.ID, f.Path, f.Name} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}

// valueAt collects every value reachable at path inside data. Index segments
// match any element of the array, so `grid[0].email` inspects the email of
// every row.
func valueAt(data any, path string) []any {
	current := []any{data}
	for _, seg := range datapath.Parse(path) {
		var next []any
		for _, node := range current {
			if seg.IsIndex {
				if arr, ok := node.([]any); ok {
					next = append(next, arr...)
				}
				continue
			}
			obj, ok := node.(map[string]any)
			if !ok {
				continue
			}
			if value, ok := obj[seg.Key]; ok {
				next = append(next, value)
			}
		}
		current = next
	}
	return current
}

// sameValue compares a stored value with a candidate. Strings compare case
// insensitively; numbers compare by value.
func sameValue(stored, candidate any) bool {
	switch c := candidate.(type) {
	case string:
		s, ok := stored.(string)
		return ok && strings.EqualFold(s, c)
	case nil:
		return stored == nil
	}
	if cf, ok := toFloat(candidate); ok {
		sf, ok := toFloat(stored)
		return ok && sf == cf
	}
	return fmt.Sprint(stored) == fmt.Sprint(candidate)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
