package processing

import (
	"context"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/visibility"
	"github.com/goliatone/go-formio-validator/pkg/visibility/expr"
)

// ConditionInput carries the values a conditional is evaluated against.
type ConditionInput struct {
	Data   map[string]any
	Row    map[string]any
	Path   string
	Extras map[string]any
}

// CheckConditional evaluates a declarative conditional and reports whether
// the component is visible. A nil conditional, or one without any clause, is
// visible.
func CheckConditional(cond *form.Conditional, in ConditionInput, eval visibility.Evaluator) (bool, error) {
	if cond == nil {
		return true, nil
	}
	if rule := strings.TrimSpace(cond.Rule); rule != "" {
		if eval == nil {
			eval = expr.New()
		}
		return eval.Eval(in.Path, rule, visibility.Context{Data: in.Data, Row: in.Row, Extras: in.Extras})
	}

	show := showFlag(cond.Show)
	if len(cond.Conditions) > 0 {
		matched := matchConditions(cond, in)
		if matched {
			return show, nil
		}
		return !show, nil
	}

	when := strings.TrimSpace(cond.When)
	if when == "" {
		return true, nil
	}
	value, _ := LookupValue(in.Data, in.Row, when)
	if Contains(value, cond.Eq) || LooseEqual(value, cond.Eq) {
		return show, nil
	}
	return !show, nil
}

func matchConditions(cond *form.Conditional, in ConditionInput) bool {
	anyOf := strings.EqualFold(strings.TrimSpace(cond.Conjunction), "any")
	for _, clause := range cond.Conditions {
		value, _ := LookupValue(in.Data, in.Row, clause.Component)
		ok := matchOperator(clause.Operator, value, clause.Value)
		if anyOf && ok {
			return true
		}
		if !anyOf && !ok {
			return false
		}
	}
	return !anyOf
}

func matchOperator(op string, value, want any) bool {
	switch op {
	case "isEqual", "":
		return Contains(value, want) || LooseEqual(value, want)
	case "isNotEqual":
		return !(Contains(value, want) || LooseEqual(value, want))
	case "isEmpty":
		return IsEmpty(value)
	case "isNotEmpty":
		return !IsEmpty(value)
	case "includes":
		return Contains(value, want)
	case "notIncludes":
		return !Contains(value, want)
	case "startsWith":
		return strings.HasPrefix(Stringify(value), Stringify(want))
	case "endsWith":
		return strings.HasSuffix(Stringify(value), Stringify(want))
	case "lessThan", "greaterThan", "lessThanOrEqual", "greaterThanOrEqual":
		got, ok := ToFloat(value)
		if !ok {
			return false
		}
		limit, ok := ToFloat(want)
		if !ok {
			return false
		}
		switch op {
		case "lessThan":
			return got < limit
		case "greaterThan":
			return got > limit
		case "lessThanOrEqual":
			return got <= limit
		default:
			return got >= limit
		}
	default:
		return false
	}
}

// LookupValue resolves a component reference used by conditionals. The row
// is searched first so references inside data grids bind to their own row;
// full paths then resolve from the submission root, and a dotted reference
// finally falls back to its last key within the row.
func LookupValue(data, row map[string]any, ref string) (any, bool) {
	ref = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(ref, "data."), "row."))
	if ref == "" {
		return nil, false
	}
	if value, ok := datapath.Get(row, ref); ok && row != nil {
		return value, true
	}
	if value, ok := datapath.Get(data, ref); ok && data != nil {
		return value, true
	}
	if segments := datapath.Parse(ref); len(segments) > 1 && row != nil {
		last := segments[len(segments)-1]
		if !last.IsIndex {
			value, ok := row[last.Key]
			return value, ok
		}
	}
	return nil, false
}

func showFlag(show any) bool {
	switch typed := show.(type) {
	case nil:
		return true
	case bool:
		return typed
	case string:
		trimmed := strings.TrimSpace(typed)
		return trimmed == "" || strings.EqualFold(trimmed, "true")
	default:
		return true
	}
}

// Hide marks a target hidden, records the decision for it and every input
// below it, and clears their data unless they opt out of clearOnHide.
func Hide(data map[string]any, scope *Scope, t *Target) {
	t.Hidden = true
	c := t.Component
	parent := t.Path
	if c.IsInput() {
		parent = parentPath(t.Path)
	}
	hideComponent(data, scope, c, parent, c.ShouldClearOnHide())
}

func hideComponent(data map[string]any, scope *Scope, c *form.Component, parent string, clear bool) {
	if c.IsInput() {
		// containers and arrays cover their descendants through the prefix
		path := datapath.Child(parent, c.Key)
		cleared := clear && c.ShouldClearOnHide()
		if cleared {
			datapath.Unset(data, path)
		}
		scope.SetConditional(ConditionalState{Path: path, Key: c.Key, Hidden: true, ClearedOnHide: cleared})
		scope.DropErrorsUnder(path)
		return
	}
	for _, child := range c.Children() {
		hideComponent(data, scope, child, parent, clear)
	}
}

// Show records that a target is visible, undoing an earlier hidden state for
// it and the inputs below it.
func Show(scope *Scope, t *Target) {
	parent := t.Path
	if t.Component.IsInput() {
		parent = parentPath(t.Path)
	}
	showComponent(scope, t.Component, parent)
}

func showComponent(scope *Scope, c *form.Component, parent string) {
	if c.IsInput() {
		path := datapath.Child(parent, c.Key)
		for _, state := range scope.Conditionals {
			if state.Path == path && state.Hidden {
				scope.SetConditional(ConditionalState{Path: path, Key: c.Key})
				break
			}
		}
		return
	}
	for _, child := range c.Children() {
		showComponent(scope, child, parent)
	}
}

func parentPath(path string) string {
	segments := datapath.Parse(path)
	if len(segments) <= 1 {
		return ""
	}
	return datapath.Join(segments[:len(segments)-1])
}

type conditionalProcessor struct {
	eval visibility.Evaluator
}

// ConditionalProcessor evaluates simple conditionals, condition lists and
// rule strings. Hidden components are skipped by the remaining processors
// and their subtree is not traversed.
func ConditionalProcessor(eval visibility.Evaluator) Processor {
	if eval == nil {
		eval = expr.New()
	}
	return conditionalProcessor{eval: eval}
}

func (conditionalProcessor) Name() string { return "conditional" }

func (p conditionalProcessor) Process(_ context.Context, pc *Context, t *Target) error {
	cond := t.Component.Conditional
	if cond == nil {
		return nil
	}
	visible, err := CheckConditional(cond, ConditionInput{
		Data:   pc.Data,
		Row:    t.Row,
		Path:   t.Path,
		Extras: pc.Config.Values,
	}, p.eval)
	if err != nil {
		pc.Logger.Emit(logging.LevelWarn, "Conditional rule could not be evaluated", map[string]any{
			"path":  t.Path,
			"rule":  cond.Rule,
			"error": err.Error(),
		})
		return nil
	}
	if !visible {
		Hide(pc.Data, pc.Scope, t)
	}
	return nil
}
