// Package datapath reads and writes values inside untyped submission data
// using the dotted/bracketed paths produced by form traversal, for example
// `customer.address.city` or `items[2].price`.
package datapath

import (
	"strconv"
	"strings"
)

// Segment is a single step in a data path. Exactly one of Key or Index is
// meaningful: Index is used when IsIndex is true.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String renders the segment the way it appears inside a path.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Parse splits a path into segments. Bracketed numbers become index segments;
// JSON pointer style prefixes (`#/`, `$.`, `/`) are tolerated so paths coming
// from external payloads map onto the same segments. `/` separates segments
// only in paths carrying a pointer prefix, so component keys may contain it.
func Parse(path string) []Segment {
	clean := strings.TrimSpace(path)
	pointer := strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "#/") || strings.HasPrefix(clean, "$/")
	for _, prefix := range []string{"#/", "$.", "$/", "/", "."} {
		clean = strings.TrimPrefix(clean, prefix)
	}
	if clean == "" {
		return nil
	}

	var out []Segment
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, Segment{Key: buf.String()})
		buf.Reset()
	}

	for i := 0; i < len(clean); i++ {
		ch := clean[i]
		switch ch {
		case '.':
			flush()
		case '/':
			if !pointer {
				buf.WriteByte(ch)
				continue
			}
			flush()
		case '[':
			flush()
			end := strings.IndexByte(clean[i:], ']')
			if end < 0 {
				buf.WriteString(clean[i:])
				i = len(clean)
				continue
			}
			inner := clean[i+1 : i+end]
			if idx, err := strconv.Atoi(inner); err == nil && idx >= 0 {
				out = append(out, Segment{Index: idx, IsIndex: true})
			} else if inner != "" {
				out = append(out, Segment{Key: strings.Trim(inner, `'"`)})
			}
			i += end
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// Join renders segments back into the canonical `a.b[0].c` form.
func Join(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if seg.IsIndex {
			b.WriteString(seg.String())
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// Child appends key to parent using dot notation.
func Child(parent, key string) string {
	parent = strings.TrimSpace(parent)
	key = strings.TrimSpace(key)
	if parent == "" {
		return key
	}
	if key == "" {
		return parent
	}
	return parent + "." + key
}

// Index appends an array index to parent.
func Index(parent string, idx int) string {
	return parent + "[" + strconv.Itoa(idx) + "]"
}

// Elements converts a path into the segment list used by error payloads:
// keys stay strings and indexes become ints.
func Elements(path string) []any {
	segments := Parse(path)
	if len(segments) == 0 {
		return nil
	}
	out := make([]any, 0, len(segments))
	for _, seg := range segments {
		if seg.IsIndex {
			out = append(out, seg.Index)
			continue
		}
		out = append(out, seg.Key)
	}
	return out
}

// Get returns the value stored at path and whether it exists.
func Get(data any, path string) (any, bool) {
	segments := Parse(path)
	if len(segments) == 0 {
		return data, data != nil
	}
	current := data
	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Has reports whether path resolves to a stored value.
func Has(data any, path string) bool {
	_, ok := Get(data, path)
	return ok
}

// Set stores value at path, creating intermediate objects and arrays as
// needed. It returns false when an existing non-container value blocks the
// path or the root is not a map.
func Set(data map[string]any, path string, value any) bool {
	segments := Parse(path)
	if data == nil || len(segments) == 0 || segments[0].IsIndex {
		return false
	}
	return setIn(data, segments, value)
}

func setIn(container any, segments []Segment, value any) bool {
	seg := segments[0]
	last := len(segments) == 1

	switch typed := container.(type) {
	case map[string]any:
		if seg.IsIndex {
			return false
		}
		if last {
			typed[seg.Key] = value
			return true
		}
		child, exists := typed[seg.Key]
		if !exists || child == nil {
			child = newContainer(segments[1])
			typed[seg.Key] = child
		}
		if arr, ok := child.([]any); ok && segments[1].IsIndex && segments[1].Index >= len(arr) {
			arr = grow(arr, segments[1].Index+1)
			typed[seg.Key] = arr
			child = arr
		}
		return setIn(child, segments[1:], value)
	case []any:
		if !seg.IsIndex || seg.Index >= len(typed) {
			return false
		}
		if last {
			typed[seg.Index] = value
			return true
		}
		child := typed[seg.Index]
		if child == nil {
			child = newContainer(segments[1])
			typed[seg.Index] = child
		}
		if arr, ok := child.([]any); ok && segments[1].IsIndex && segments[1].Index >= len(arr) {
			arr = grow(arr, segments[1].Index+1)
			typed[seg.Index] = arr
			child = arr
		}
		return setIn(child, segments[1:], value)
	default:
		return false
	}
}

// Unset removes the value stored at path. Array elements are set to nil
// rather than removed so sibling indexes stay stable. Missing paths are a
// no-op.
func Unset(data map[string]any, path string) bool {
	segments := Parse(path)
	if data == nil || len(segments) == 0 {
		return false
	}
	parent := any(data)
	if len(segments) > 1 {
		var ok bool
		parent, ok = Get(data, Join(segments[:len(segments)-1]))
		if !ok {
			return false
		}
	}
	lastSeg := segments[len(segments)-1]
	switch typed := parent.(type) {
	case map[string]any:
		if lastSeg.IsIndex {
			return false
		}
		if _, ok := typed[lastSeg.Key]; !ok {
			return false
		}
		delete(typed, lastSeg.Key)
		return true
	case []any:
		if !lastSeg.IsIndex || lastSeg.Index >= len(typed) {
			return false
		}
		typed[lastSeg.Index] = nil
		return true
	default:
		return false
	}
}

// Clone deep-copies maps and slices of the untyped JSON shape. Other values
// are shared.
func Clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			out[key] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for idx, child := range typed {
			out[idx] = Clone(child)
		}
		return out
	default:
		return value
	}
}

// CloneMap is Clone specialised for the submission root.
func CloneMap(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	return Clone(data).(map[string]any)
}

func step(current any, seg Segment) (any, bool) {
	switch typed := current.(type) {
	case map[string]any:
		if seg.IsIndex {
			value, ok := typed[strconv.Itoa(seg.Index)]
			return value, ok
		}
		value, ok := typed[seg.Key]
		return value, ok
	case []any:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(typed) {
			return nil, false
		}
		return typed[seg.Index], true
	case []map[string]any:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(typed) {
			return nil, false
		}
		return typed[seg.Index], true
	default:
		return nil, false
	}
}

func newContainer(next Segment) any {
	if next.IsIndex {
		return grow(nil, next.Index+1)
	}
	return make(map[string]any)
}

func grow(arr []any, size int) []any {
	for len(arr) < size {
		arr = append(arr, nil)
	}
	return arr
}
