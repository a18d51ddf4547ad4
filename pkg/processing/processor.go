package processing

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
)

// Processor runs against every component instance during traversal. Setting
// Target.Hidden stops the remaining processors and skips the subtree.
type Processor interface {
	Name() string
	Process(ctx context.Context, pc *Context, t *Target) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, pc *Context, t *Target) error

type namedProcessor struct {
	name string
	fn   ProcessorFunc
}

// NewProcessor wraps fn as a Processor named name.
func NewProcessor(name string, fn ProcessorFunc) Processor {
	return namedProcessor{name: name, fn: fn}
}

func (p namedProcessor) Name() string { return p.name }

func (p namedProcessor) Process(ctx context.Context, pc *Context, t *Target) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, pc, t)
}

// SubmissionProcessors returns the ordered processors of the structural
// stage.
func SubmissionProcessors() []Processor {
	return []Processor{
		ConditionalProcessor(nil),
		NewProcessor("defaultValue", processDefaultValue),
		NewProcessor("normalize", processNormalize),
		NewProcessor("validate", processValidate),
	}
}

func processDefaultValue(_ context.Context, pc *Context, t *Target) error {
	c := t.Component
	if !c.IsInput() || c.Kind() == form.KindContainer || IsEmpty(c.DefaultValue) {
		return nil
	}
	if datapath.Has(pc.Data, t.Path) {
		return nil
	}
	value := datapath.Clone(c.DefaultValue)
	if c.Multiple {
		if _, ok := value.([]any); !ok {
			value = []any{value}
		}
	}
	datapath.Set(pc.Data, t.Path, value)
	return nil
}

func processNormalize(_ context.Context, pc *Context, t *Target) error {
	c := t.Component
	if !c.IsInput() || c.Kind() != form.KindLeaf {
		return nil
	}
	value, ok := datapath.Get(pc.Data, t.Path)
	if !ok || value == nil {
		return nil
	}
	normalized, changed := Normalize(c, value)
	if changed {
		datapath.Set(pc.Data, t.Path, normalized)
	}
	return nil
}

// Normalize coerces a submitted value to the type its component stores.
// Numbers arrive as float64 from JSON and are kept; numeric strings are
// parsed. It reports whether the value changed.
func Normalize(c *form.Component, value any) (any, bool) {
	typ := strings.ToLower(c.Type)

	if c.Multiple && typ != "selectboxes" && typ != "file" {
		if list, ok := value.([]any); ok {
			changed := false
			out := make([]any, len(list))
			for idx, item := range list {
				next, itemChanged := normalizeScalar(typ, item)
				out[idx] = next
				changed = changed || itemChanged
			}
			if !changed {
				return value, false
			}
			return out, true
		}
		if IsEmpty(value) {
			return value, false
		}
		next, _ := normalizeScalar(typ, value)
		return []any{next}, true
	}

	if typ == "selectboxes" {
		boxes, ok := value.(map[string]any)
		if !ok {
			return value, false
		}
		changed := false
		out := make(map[string]any, len(boxes))
		for key, selected := range boxes {
			if b, isBool := selected.(bool); isBool {
				out[key] = b
				continue
			}
			out[key] = truthyString(selected)
			changed = true
		}
		if !changed {
			return value, false
		}
		return out, true
	}

	return normalizeScalar(typ, value)
}

func normalizeScalar(typ string, value any) (any, bool) {
	switch typ {
	case "number", "currency":
		switch typed := value.(type) {
		case string:
			if f, ok := ToFloat(typed); ok {
				return f, true
			}
		}
	case "checkbox":
		if s, ok := value.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "on", "1":
				return true, true
			case "false", "off", "0", "":
				return false, true
			}
		}
	}
	return value, false
}

func truthyString(value any) bool {
	switch typed := value.(type) {
	case string:
		return strings.EqualFold(typed, "true")
	case float64:
		return typed != 0
	case nil:
		return false
	default:
		return true
	}
}

func processValidate(ctx context.Context, pc *Context, t *Target) error {
	c := t.Component
	if !c.IsInput() || t.Hidden || len(pc.Rules) == 0 {
		return nil
	}
	value, has := datapath.Get(pc.Data, t.Path)
	config := pc.Config
	rc := &RuleContext{
		Form:      pc.Form,
		Component: c,
		Path:      t.Path,
		Value:     value,
		HasValue:  has,
		Data:      pc.Data,
		Row:       t.Row,
		Config:    &config,
		Database:  pc.Database(),
	}
	for _, rule := range pc.Rules {
		if rule == nil {
			continue
		}
		f, err := rule.Check(ctx, rc)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		if f != nil {
			pc.Scope.AddError(*f)
		}
	}
	return nil
}
