package form

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
)

// Kind classifies how a component maps onto submission data.
type Kind int

const (
	// KindLeaf components store a single value under their key.
	KindLeaf Kind = iota
	// KindLayout components group children without adding a data namespace.
	KindLayout
	// KindContainer components nest their children under an object at key.
	KindContainer
	// KindArray components store an array of row objects at key.
	KindArray
	// KindContent components carry no data at all.
	KindContent
)

var layoutTypes = map[string]struct{}{
	"panel":    {},
	"fieldset": {},
	"columns":  {},
	"well":     {},
	"table":    {},
	"tabs":     {},
}

var contentTypes = map[string]struct{}{
	"htmlelement": {},
	"content":     {},
	"button":      {},
}

var arrayTypes = map[string]struct{}{
	"datagrid":  {},
	"editgrid":  {},
	"datatable": {},
}

// KindOf classifies c.
func KindOf(c *Component) Kind {
	if c == nil {
		return KindContent
	}
	typ := strings.ToLower(strings.TrimSpace(c.Type))
	if _, ok := arrayTypes[typ]; ok {
		return KindArray
	}
	if _, ok := contentTypes[typ]; ok {
		return KindContent
	}
	if _, ok := layoutTypes[typ]; ok {
		return KindLayout
	}
	if typ == "container" || (c.Tree && c.Key != "" && typ != "" && c.HasChildren()) {
		return KindContainer
	}
	if typ == "" && c.HasChildren() {
		// tabs keep their panes as untyped component groups
		return KindLayout
	}
	return KindLeaf
}

// Kind is shorthand for KindOf(c).
func (c *Component) Kind() Kind {
	return KindOf(c)
}

// HasChildren reports whether c nests any components.
func (c *Component) HasChildren() bool {
	if c == nil {
		return false
	}
	if len(c.Components) > 0 {
		return true
	}
	for _, col := range c.Columns {
		if len(col.Components) > 0 {
			return true
		}
	}
	for _, row := range c.Rows {
		for _, cell := range row {
			if len(cell.Components) > 0 {
				return true
			}
		}
	}
	return false
}

// Children returns pointers to every nested component in document order:
// components first, then columns, then table cells row by row.
func (c *Component) Children() []*Component {
	if c == nil {
		return nil
	}
	var out []*Component
	for idx := range c.Components {
		out = append(out, &c.Components[idx])
	}
	for colIdx := range c.Columns {
		col := &c.Columns[colIdx]
		for idx := range col.Components {
			out = append(out, &col.Components[idx])
		}
	}
	for rowIdx := range c.Rows {
		for cellIdx := range c.Rows[rowIdx] {
			cell := &c.Rows[rowIdx][cellIdx]
			for idx := range cell.Components {
				out = append(out, &cell.Components[idx])
			}
		}
	}
	return out
}

// IsInput reports whether the component holds submission data.
func (c *Component) IsInput() bool {
	switch c.Kind() {
	case KindLayout, KindContent:
		return false
	default:
		return strings.TrimSpace(c.Key) != ""
	}
}

// ShouldClearOnHide reports whether conditionally hidden values are removed
// from the data. Components clear on hide unless they opt out.
func (c *Component) ShouldClearOnHide() bool {
	if c == nil || c.ClearOnHide == nil {
		return true
	}
	return *c.ClearOnHide
}

// IsRequired reports whether validate.required is set.
func (c *Component) IsRequired() bool {
	return c != nil && c.Validate != nil && c.Validate.Required
}

// DisplayLabel is the label used in error messages.
func (c *Component) DisplayLabel() string {
	if c == nil {
		return ""
	}
	if label := strings.TrimSpace(c.ErrorLabel); label != "" {
		return label
	}
	if label := strings.TrimSpace(c.Label); label != "" {
		return label
	}
	return c.Key
}

// Options returns the static options offered by select, radio and
// selectboxes components. Dynamic sources (url, resource) yield nil.
func (c *Component) Options() []Option {
	if c == nil {
		return nil
	}
	if len(c.Values) > 0 {
		return c.Values
	}
	if c.Data != nil && (c.DataSrc == "" || c.DataSrc == "values") {
		return c.Data.Values
	}
	return nil
}

// UnmarshalJSON decodes the typed fields and keeps the full object in Raw.
func (c *Component) UnmarshalJSON(data []byte) error {
	type alias Component
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("form: decode component: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("form: decode component: %w", err)
	}
	*c = Component(decoded)
	c.Raw = raw
	return nil
}

// MarshalJSON writes Raw overlaid with the typed fields so attributes the
// pipeline does not model survive a round trip.
func (c Component) MarshalJSON() ([]byte, error) {
	type alias Component
	typed, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Raw) == 0 {
		return typed, nil
	}
	var overlay map[string]any
	if err := json.Unmarshal(typed, &overlay); err != nil {
		return nil, err
	}
	merged := datapath.CloneMap(c.Raw)
	for key, value := range overlay {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// Map returns the component as a plain JSON object, the shape handed to
// scripts.
func (c *Component) Map() map[string]any {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return datapath.CloneMap(c.Raw)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return datapath.CloneMap(c.Raw)
	}
	return out
}

// Clone deep-copies the component tree.
func (c Component) Clone() Component {
	out := c
	if c.Raw != nil {
		out.Raw = datapath.CloneMap(c.Raw)
	}
	out.DefaultValue = datapath.Clone(c.DefaultValue)
	if c.Validate != nil {
		v := *c.Validate
		out.Validate = &v
	}
	if c.Conditional != nil {
		cond := *c.Conditional
		cond.Conditions = append([]Condition(nil), c.Conditional.Conditions...)
		out.Conditional = &cond
	}
	if c.ClearOnHide != nil {
		v := *c.ClearOnHide
		out.ClearOnHide = &v
	}
	if c.Fetch != nil {
		f := *c.Fetch
		f.Headers = append([]Header(nil), c.Fetch.Headers...)
		out.Fetch = &f
	}
	if c.Data != nil {
		d := *c.Data
		d.Values = append([]Option(nil), c.Data.Values...)
		out.Data = &d
	}
	if c.DatePicker != nil {
		dp := *c.DatePicker
		out.DatePicker = &dp
	}
	out.Values = append([]Option(nil), c.Values...)
	out.Logic = append([]Logic(nil), c.Logic...)
	out.Components = CloneAll(c.Components)
	if c.Columns != nil {
		out.Columns = make([]Column, len(c.Columns))
		for idx, col := range c.Columns {
			out.Columns[idx] = Column{Components: CloneAll(col.Components), Width: col.Width}
		}
	}
	if c.Rows != nil {
		out.Rows = make([][]Column, len(c.Rows))
		for rowIdx, row := range c.Rows {
			cells := make([]Column, len(row))
			for cellIdx, cell := range row {
				cells[cellIdx] = Column{Components: CloneAll(cell.Components), Width: cell.Width}
			}
			out.Rows[rowIdx] = cells
		}
	}
	return out
}

// CloneAll deep-copies a component list.
func CloneAll(components []Component) []Component {
	if components == nil {
		return nil
	}
	out := make([]Component, len(components))
	for idx := range components {
		out[idx] = components[idx].Clone()
	}
	return out
}
