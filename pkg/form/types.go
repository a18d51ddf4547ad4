package form

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Form is a Form.io form definition: an ordered tree of components plus
// form-level configuration.
type Form struct {
	ID         string         `json:"_id,omitempty"`
	Title      string         `json:"title,omitempty"`
	Name       string         `json:"name,omitempty"`
	Path       string         `json:"path,omitempty"`
	Display    string         `json:"display,omitempty"`
	Project    string         `json:"project,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Components []Component    `json:"components"`
}

// Component is a single node of the form tree. Typed fields cover what the
// validation pipeline reads; Raw keeps the full decoded object so expressions
// running in the sandbox can see every attribute the author wrote.
type Component struct {
	Type                   string         `json:"type"`
	Key                    string         `json:"key"`
	Label                  string         `json:"label,omitempty"`
	ErrorLabel             string         `json:"errorLabel,omitempty"`
	Input                  bool           `json:"input,omitempty"`
	Tree                   bool           `json:"tree,omitempty"`
	Multiple               bool           `json:"multiple,omitempty"`
	Unique                 bool           `json:"unique,omitempty"`
	DefaultValue           any            `json:"defaultValue,omitempty"`
	ClearOnHide            *bool          `json:"clearOnHide,omitempty"`
	Validate               *Validate      `json:"validate,omitempty"`
	Conditional            *Conditional   `json:"conditional,omitempty"`
	CustomConditional      Expression     `json:"customConditional,omitempty"`
	CalculateValue         Expression     `json:"calculateValue,omitempty"`
	AllowCalculateOverride bool           `json:"allowCalculateOverride,omitempty"`
	CustomDefaultValue     Expression     `json:"customDefaultValue,omitempty"`
	Logic                  []Logic        `json:"logic,omitempty"`
	DataSrc                string         `json:"dataSrc,omitempty"`
	Data                   *DataSource    `json:"data,omitempty"`
	Values                 []Option       `json:"values,omitempty"`
	DatePicker             *DatePicker    `json:"datePicker,omitempty"`
	Fetch                  *Fetch         `json:"fetch,omitempty"`
	Components             []Component    `json:"components,omitempty"`
	Columns                []Column       `json:"columns,omitempty"`
	Rows                   [][]Column     `json:"rows,omitempty"`
	Raw                    map[string]any `json:"-"`
}

// Validate holds the declarative validation settings of a component.
type Validate struct {
	Required      bool           `json:"required,omitempty"`
	Pattern       string         `json:"pattern,omitempty"`
	MinLength     OptionalNumber `json:"minLength,omitzero"`
	MaxLength     OptionalNumber `json:"maxLength,omitzero"`
	Min           OptionalNumber `json:"min,omitzero"`
	Max           OptionalNumber `json:"max,omitzero"`
	Custom        Expression     `json:"custom,omitempty"`
	CustomMessage string         `json:"customMessage,omitempty"`
}

// Conditional describes declarative visibility. Simple form uses
// Show/When/Eq; the newer form uses Conjunction with Conditions; Rule holds a
// compact boolean expression over `data` and `row`.
type Conditional struct {
	Show        any         `json:"show,omitempty"`
	When        string      `json:"when,omitempty"`
	Eq          any         `json:"eq,omitempty"`
	Conjunction string      `json:"conjunction,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Rule        string      `json:"rule,omitempty"`
}

// Condition is one clause of a conditional.
type Condition struct {
	Component string `json:"component"`
	Operator  string `json:"operator"`
	Value     any    `json:"value,omitempty"`
}

// Logic couples a trigger with actions evaluated in the sandbox.
type Logic struct {
	Name    string   `json:"name,omitempty"`
	Trigger Trigger  `json:"trigger"`
	Actions []Action `json:"actions,omitempty"`
}

// Trigger decides whether the logic actions run.
type Trigger struct {
	Type       string     `json:"type"`
	Javascript Expression `json:"javascript,omitempty"`
}

// Action is applied when a logic trigger fires.
type Action struct {
	Name         string     `json:"name,omitempty"`
	Type         string     `json:"type"`
	Value        Expression `json:"value,omitempty"`
	CustomAction Expression `json:"customAction,omitempty"`
}

// Option is a label/value pair offered by select-like components.
type Option struct {
	Label string `json:"label,omitempty"`
	Value any    `json:"value"`
}

// DataSource is the `data` block of select components.
type DataSource struct {
	Values   []Option `json:"values,omitempty"`
	URL      string   `json:"url,omitempty"`
	Resource string   `json:"resource,omitempty"`
}

// DatePicker carries date bounds for datetime components.
type DatePicker struct {
	MinDate string `json:"minDate,omitempty"`
	MaxDate string `json:"maxDate,omitempty"`
}

// Fetch is a fetch descriptor declaring that a component sources its
// contents from an external resource or URL.
type Fetch struct {
	DataSrc     string     `json:"dataSrc,omitempty"`
	Resource    string     `json:"resource,omitempty"`
	URL         string     `json:"fetchUrl,omitempty"`
	Method      string     `json:"method,omitempty"`
	Headers     []Header   `json:"headers,omitempty"`
	MapFunction Expression `json:"mapFunction,omitempty"`
}

// Header is a single request header of a fetch descriptor.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Column groups components inside columns and table cells.
type Column struct {
	Components []Component `json:"components,omitempty"`
	Width      any         `json:"width,omitempty"`
}

// Expression is an author-supplied script. Only string scripts are kept;
// object-valued logic (JSON logic) decodes to an empty expression.
type Expression string

// UnmarshalJSON accepts strings and ignores any other JSON value.
func (e *Expression) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*e = ""
		return nil
	}
	*e = Expression(raw)
	return nil
}

// Empty reports whether the expression has no script.
func (e Expression) Empty() bool {
	return strings.TrimSpace(string(e)) == ""
}

// OptionalNumber is a numeric setting that authors may leave as an empty
// string. Valid reports whether a number was provided.
type OptionalNumber struct {
	Value float64
	Valid bool
}

// Num returns an OptionalNumber holding v.
func Num(v float64) OptionalNumber {
	return OptionalNumber{Value: v, Valid: true}
}

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null.
func (n *OptionalNumber) UnmarshalJSON(data []byte) error {
	*n = OptionalNumber{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("form: invalid number %s: %w", trimmed, err)
	}
	switch typed := raw.(type) {
	case float64:
		*n = Num(typed)
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return fmt.Errorf("form: invalid number %q", typed)
		}
		*n = Num(parsed)
	}
	return nil
}

// MarshalJSON renders unset numbers as empty strings, matching the authoring
// format.
func (n OptionalNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte(`""`), nil
	}
	return json.Marshal(n.Value)
}

// IsZero lets omitempty drop unset numbers.
func (n OptionalNumber) IsZero() bool {
	return !n.Valid
}
