package form

import (
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
)

// WalkFunc is called for every component reached by Walk. schemaPath is the
// component's data path without array indexes. Returning false skips the
// component's children.
type WalkFunc func(c *Component, schemaPath string, parent *Component) bool

// Walk visits components depth first in document order. Layout components do
// not add a path segment; containers and arrays nest their children under
// their key.
func Walk(components []Component, fn WalkFunc) {
	if fn == nil {
		return
	}
	for idx := range components {
		walk(&components[idx], "", nil, fn)
	}
}

func walk(c *Component, parentPath string, parent *Component, fn WalkFunc) {
	path := parentPath
	if c.IsInput() {
		path = datapath.Child(parentPath, c.Key)
	}
	if !fn(c, path, parent) {
		return
	}
	childPath := parentPath
	switch c.Kind() {
	case KindContainer, KindArray:
		childPath = datapath.Child(parentPath, c.Key)
	}
	for _, child := range c.Children() {
		walk(child, childPath, c, fn)
	}
}

// FindByKey returns the first component with the given key.
func FindByKey(components []Component, key string) *Component {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	var found *Component
	Walk(components, func(c *Component, _ string, _ *Component) bool {
		if found != nil {
			return false
		}
		if c.Key == key {
			found = c
			return false
		}
		return true
	})
	return found
}

// Resolved is a per-call view of a component tree, indexed by schema path.
// It owns its components; the source form is never touched.
type Resolved struct {
	Components []Component
	index      map[string]*Component
	order      []string
}

// NewResolved deep-copies components and indexes the copy.
func NewResolved(components []Component) *Resolved {
	r := &Resolved{Components: CloneAll(components)}
	r.Reindex()
	return r
}

// Reindex rebuilds the path index after the tree has been modified.
func (r *Resolved) Reindex() {
	r.index = make(map[string]*Component)
	r.order = r.order[:0]
	Walk(r.Components, func(c *Component, path string, _ *Component) bool {
		if path == "" || !c.IsInput() {
			return true
		}
		if _, exists := r.index[path]; !exists {
			r.order = append(r.order, path)
		}
		r.index[path] = c
		return true
	})
}

// Lookup returns the component owning a data path. Array indexes in path are
// ignored so `grid[2].email` finds the `grid.email` component.
func (r *Resolved) Lookup(path string) (*Component, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.index[SchemaPath(path)]
	return c, ok
}

// Paths lists indexed schema paths in document order.
func (r *Resolved) Paths() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// SchemaPath strips array indexes from a data path.
func SchemaPath(path string) string {
	segments := datapath.Parse(path)
	keys := segments[:0]
	for _, seg := range segments {
		if seg.IsIndex {
			continue
		}
		keys = append(keys, seg)
	}
	return datapath.Join(keys)
}
