// Package rules provides the built-in structural rules run during the
// structural stage on the server.
package rules

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

// Server returns the built-in rules in evaluation order.
func Server() []processing.Rule {
	return []processing.Rule{
		processing.NewRule("required", Required),
		processing.NewRule("minLength", MinLength),
		processing.NewRule("maxLength", MaxLength),
		processing.NewRule("pattern", Pattern),
		processing.NewRule("email", Email),
		processing.NewRule("min", Min),
		processing.NewRule("max", Max),
		processing.NewRule("minDate", MinDate),
		processing.NewRule("maxDate", MaxDate),
		processing.NewRule("select", Select),
		processing.NewRule("unique", Unique),
	}
}

// Names lists the rule names of rules in order.
func Names(list []processing.Rule) []string {
	out := make([]string, 0, len(list))
	for _, rule := range list {
		out = append(out, rule.Name())
	}
	return out
}

// Required fails components marked required whose value is empty. A
// required checkbox must be checked.
func Required(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	if !rc.Component.IsRequired() {
		return nil, nil
	}
	empty := processing.IsEmpty(rc.Value)
	if !empty && strings.EqualFold(rc.Component.Type, "checkbox") {
		if checked, ok := rc.Value.(bool); ok && !checked {
			empty = true
		}
	}
	if !empty {
		return nil, nil
	}
	return rc.Fail("required", nil), nil
}

// MinLength checks the rune length of string values.
func MinLength(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	limit, ok := setting(rc, func(v *form.Validate) form.OptionalNumber { return v.MinLength })
	if !ok {
		return nil, nil
	}
	for _, value := range stringValues(rc) {
		if float64(utf8.RuneCountInString(value)) < limit {
			return rc.Fail("minLength", map[string]any{"length": limit, "setting": limit}), nil
		}
	}
	return nil, nil
}

// MaxLength checks the rune length of string values.
func MaxLength(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	limit, ok := setting(rc, func(v *form.Validate) form.OptionalNumber { return v.MaxLength })
	if !ok {
		return nil, nil
	}
	for _, value := range stringValues(rc) {
		if float64(utf8.RuneCountInString(value)) > limit {
			return rc.Fail("maxLength", map[string]any{"length": limit, "setting": limit}), nil
		}
	}
	return nil, nil
}

var patterns sync.Map // string -> *regexp.Regexp, nil for invalid sources

func compilePattern(source string) *regexp.Regexp {
	if cached, ok := patterns.Load(source); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("^(?:" + source + ")$")
	if err != nil {
		re = nil
	}
	patterns.Store(source, re)
	return re
}

// Pattern matches string values against validate.pattern anchored at both
// ends. Patterns the engine cannot compile are ignored.
func Pattern(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	if rc.Component.Validate == nil || strings.TrimSpace(rc.Component.Validate.Pattern) == "" {
		return nil, nil
	}
	source := rc.Component.Validate.Pattern
	re := compilePattern(source)
	if re == nil {
		return nil, nil
	}
	for _, value := range stringValues(rc) {
		if !re.MatchString(value) {
			return rc.Fail("pattern", map[string]any{"pattern": source, "setting": source}), nil
		}
	}
	return nil, nil
}

// Email checks that email components hold a bare address.
func Email(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	if !strings.EqualFold(rc.Component.Type, "email") {
		return nil, nil
	}
	for _, value := range stringValues(rc) {
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != strings.TrimSpace(value) || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
			return rc.Fail("email", nil), nil
		}
	}
	return nil, nil
}

// Min checks numeric values against validate.min.
func Min(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	limit, ok := setting(rc, func(v *form.Validate) form.OptionalNumber { return v.Min })
	if !ok {
		return nil, nil
	}
	for _, value := range numberValues(rc) {
		if value < limit {
			return rc.Fail("min", map[string]any{"min": limit, "setting": limit}), nil
		}
	}
	return nil, nil
}

// Max checks numeric values against validate.max.
func Max(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	limit, ok := setting(rc, func(v *form.Validate) form.OptionalNumber { return v.Max })
	if !ok {
		return nil, nil
	}
	for _, value := range numberValues(rc) {
		if value > limit {
			return rc.Fail("max", map[string]any{"max": limit, "setting": limit}), nil
		}
	}
	return nil, nil
}

// MinDate checks date values against datePicker.minDate.
func MinDate(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	if rc.Component.DatePicker == nil {
		return nil, nil
	}
	return checkDate(rc, "minDate", rc.Component.DatePicker.MinDate, func(value, bound time.Time) bool {
		return value.Before(bound)
	})
}

// MaxDate checks date values against datePicker.maxDate.
func MaxDate(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	if rc.Component.DatePicker == nil {
		return nil, nil
	}
	return checkDate(rc, "maxDate", rc.Component.DatePicker.MaxDate, func(value, bound time.Time) bool {
		return value.After(bound)
	})
}

func checkDate(rc *processing.RuleContext, rule, rawBound string, violates func(value, bound time.Time) bool) (*findings.Finding, error) {
	rawBound = strings.TrimSpace(rawBound)
	if rawBound == "" {
		return nil, nil
	}
	bound, err := dateparse.ParseAny(rawBound)
	if err != nil {
		// bounds written as moment expressions are evaluated by scripts
		return nil, nil
	}
	for _, raw := range stringValues(rc) {
		value, err := dateparse.ParseAny(raw)
		if err != nil {
			return rc.Fail("date", nil), nil
		}
		if violates(value, bound) {
			return rc.Fail(rule, map[string]any{rule: rawBound, "setting": rawBound}), nil
		}
	}
	return nil, nil
}

// Select checks that select, radio and selectboxes values are among the
// static options of the component. Components with dynamic option sources
// are not checked.
func Select(_ context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	typ := strings.ToLower(rc.Component.Type)
	if typ != "select" && typ != "radio" && typ != "selectboxes" {
		return nil, nil
	}
	options := rc.Component.Options()
	if len(options) == 0 || processing.IsEmpty(rc.Value) {
		return nil, nil
	}
	allowed := func(value any) bool {
		for _, opt := range options {
			if processing.LooseEqual(opt.Value, value) {
				return true
			}
		}
		return false
	}

	switch typed := rc.Value.(type) {
	case map[string]any:
		for key, selected := range typed {
			if on, ok := selected.(bool); ok && !on {
				continue
			}
			if !allowed(key) {
				return rc.Fail("select", map[string]any{"setting": key}), nil
			}
		}
	case []any:
		for _, item := range typed {
			if !allowed(item) {
				return rc.Fail("select", map[string]any{"setting": item}), nil
			}
		}
	default:
		if !allowed(typed) {
			return rc.Fail("select", map[string]any{"setting": typed}), nil
		}
	}
	return nil, nil
}

// Unique asks the database capability whether the value is unique.
func Unique(ctx context.Context, rc *processing.RuleContext) (*findings.Finding, error) {
	if !rc.Component.Unique || processing.IsEmpty(rc.Value) {
		return nil, nil
	}
	db := rc.Database
	if db == nil {
		db = processing.DefaultDatabase{}
	}
	ok, err := db.IsUnique(ctx, processing.UniqueRequest{
		Form:      rc.Form,
		Component: rc.Component,
		Path:      rc.Path,
		Value:     rc.Value,
	})
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	return rc.Fail("unique", nil), nil
}

func setting(rc *processing.RuleContext, pick func(*form.Validate) form.OptionalNumber) (float64, bool) {
	if rc.Component.Validate == nil || processing.IsEmpty(rc.Value) {
		return 0, false
	}
	n := pick(rc.Component.Validate)
	return n.Value, n.Valid
}

// values expands multiple-value components into their elements.
func values(rc *processing.RuleContext) []any {
	if processing.IsEmpty(rc.Value) {
		return nil
	}
	if list, ok := rc.Value.([]any); ok && (rc.Component.Multiple || rc.Component.Kind() == form.KindLeaf) {
		out := make([]any, 0, len(list))
		for _, item := range list {
			if !processing.IsEmpty(item) {
				out = append(out, item)
			}
		}
		return out
	}
	return []any{rc.Value}
}

func stringValues(rc *processing.RuleContext) []string {
	var out []string
	for _, value := range values(rc) {
		if s, ok := value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func numberValues(rc *processing.RuleContext) []float64 {
	var out []float64
	for _, value := range values(rc) {
		if _, isBool := value.(bool); isBool {
			continue
		}
		if f, ok := processing.ToFloat(value); ok {
			out = append(out, f)
		}
	}
	return out
}
