package processing

import (
	"context"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
)

// Rule is a structural check run against one component instance. A nil
// finding means the value passed. Errors abort the call and are reserved for
// failures of the check itself, such as an unavailable database.
type Rule interface {
	Name() string
	Check(ctx context.Context, rc *RuleContext) (*findings.Finding, error)
}

// RuleContext is what a rule sees for one component instance.
type RuleContext struct {
	Form      *form.Form
	Component *form.Component
	Path      string
	Value     any
	HasValue  bool
	Data      map[string]any
	Row       map[string]any
	Config    *Config
	Database  Database
}

// Fail builds a finding for rule with the component label and any extra
// template values.
func (rc *RuleContext) Fail(rule string, extra map[string]any) *findings.Finding {
	ctx := map[string]any{
		"label": rc.Component.DisplayLabel(),
		"value": rc.Value,
	}
	for key, value := range extra {
		ctx[key] = value
	}
	f := findings.New(rc.Component.Key, rc.Path, rule, ctx)
	if rc.Component.Validate != nil && rc.Component.Validate.CustomMessage != "" {
		f.Template = rc.Component.Validate.CustomMessage
	}
	return &f
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(ctx context.Context, rc *RuleContext) (*findings.Finding, error)

type namedRule struct {
	name string
	fn   RuleFunc
}

// NewRule wraps fn as a Rule named name.
func NewRule(name string, fn RuleFunc) Rule {
	return namedRule{name: name, fn: fn}
}

func (r namedRule) Name() string { return r.name }

func (r namedRule) Check(ctx context.Context, rc *RuleContext) (*findings.Finding, error) {
	if r.fn == nil {
		return nil, nil
	}
	return r.fn(ctx, rc)
}
