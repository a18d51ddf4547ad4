package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

// scriptParams are the variables every form script can reference. The
// output variable of the script kind is appended as the last parameter.
var scriptParams = []string{
	"data", "row", "rowIndex", "component", "form", "config", "submission",
	"token", "tokens", "path", "instance", "input",
}

type runner struct {
	e          *Evaluator
	logger     logging.Logger
	ctx        context.Context
	vm         *goja.Runtime
	in         *Input
	formValue  goja.Value
	configVal  goja.Value
	submission goja.Value
	components map[*form.Component]goja.Value
}

func (e *Evaluator) run(ctx context.Context, vm *goja.Runtime, in *Input) (*Output, error) {
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	r := &runner{
		e:          e,
		logger:     *in.Logger,
		ctx:        ctx,
		vm:         vm,
		in:         in,
		components: make(map[*form.Component]goja.Value),
	}
	if err := r.install(); err != nil {
		return nil, err
	}

	if err := r.list(pointerList(in.Components), "", in.Data, -1); err != nil {
		return nil, err
	}

	in.Data = normalizeMap(in.Data)
	return &Output{Scope: in.Scope, Data: in.Data}, nil
}

func (r *runner) install() error {
	if err := installHelpers(r.ctx, r.vm, r.e, r.in); err != nil {
		return err
	}
	for _, dep := range r.e.deps {
		if err := r.bind(dep); err != nil {
			return err
		}
	}
	for _, dep := range r.in.AdditionalDeps {
		compiled, err := r.e.compileDependencies([]Dependency{dep})
		if err != nil {
			return &ScriptError{Kind: "dependency", Key: dep.Name, Err: err}
		}
		if err := r.bind(compiled[0]); err != nil {
			return err
		}
	}

	formMap, err := toPlain(r.in.Form)
	if err != nil {
		return fmt.Errorf("sandbox: encode form: %w", err)
	}
	r.formValue = r.vm.ToValue(formMap)
	r.configVal = r.vm.ToValue(r.in.Config)
	submission := datapath.CloneMap(r.in.Submission)
	if submission == nil {
		submission = make(map[string]any)
	}
	submission["data"] = r.in.Data
	r.submission = r.vm.ToValue(submission)
	return nil
}

func (r *runner) bind(dep compiledDependency) error {
	if dep.program == nil {
		return r.vm.Set(dep.name, dep.value)
	}
	value, err := r.vm.RunProgram(dep.program)
	if err != nil {
		return classify(err, &ScriptError{Kind: "dependency", Key: dep.name})
	}
	if dep.name == "" || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	if existing := r.vm.Get(dep.name); existing != nil && !goja.IsUndefined(existing) {
		return nil
	}
	return r.vm.Set(dep.name, value)
}

func pointerList(components []form.Component) []*form.Component {
	out := make([]*form.Component, len(components))
	for idx := range components {
		out[idx] = &components[idx]
	}
	return out
}

func (r *runner) list(list []*form.Component, parent string, row map[string]any, rowIndex int) error {
	for _, c := range list {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if err := r.component(c, parent, row, rowIndex); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) component(c *form.Component, parent string, row map[string]any, rowIndex int) error {
	path := parent
	if c.IsInput() {
		path = datapath.Child(parent, c.Key)
		if r.in.Scope.IsHidden(path) {
			return nil
		}
	}
	t := &processing.Target{Component: c, Path: path, Row: row}

	steps := []func(*processing.Target, int) error{
		r.fetch,
		r.customDefault,
		r.calculate,
		r.customConditional,
		r.logic,
		r.customValidate,
	}
	for _, step := range steps {
		if err := step(t, rowIndex); err != nil {
			return err
		}
		if t.Hidden {
			return nil
		}
	}

	switch c.Kind() {
	case form.KindLayout:
		return r.list(c.Children(), parent, row, rowIndex)
	case form.KindContainer:
		return r.list(c.Children(), path, objectAt(r.in.Data, path), rowIndex)
	case form.KindArray:
		value, _ := datapath.Get(r.in.Data, path)
		rows, _ := value.([]any)
		for idx := range rows {
			rowPath := datapath.Index(path, idx)
			if err := r.list(c.Children(), rowPath, objectAt(r.in.Data, rowPath), idx); err != nil {
				return err
			}
		}
	}
	return nil
}

func objectAt(data map[string]any, path string) map[string]any {
	value, _ := datapath.Get(data, path)
	if obj, ok := value.(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}

func (r *runner) fetch(t *processing.Target, _ int) error {
	c := t.Component
	if !fetches(c) || !c.IsInput() {
		return nil
	}
	if r.in.Fetcher == nil {
		r.logger.Emit(logging.LevelDebug, "No fetcher configured, skipping data source", map[string]any{"path": t.Path})
		return nil
	}
	req := FetchRequest{
		Path:     t.Path,
		Key:      c.Key,
		DataSrc:  c.Fetch.DataSrc,
		Resource: c.Fetch.Resource,
		URL:      r.e.templates.RenderString(c.Fetch.URL, map[string]any{"data": r.in.Data, "row": t.Row}),
		Method:   strings.ToUpper(strings.TrimSpace(c.Fetch.Method)),
		Token:    r.in.Token,
	}
	if req.Method == "" {
		req.Method = "GET"
	}
	if len(c.Fetch.Headers) > 0 {
		req.Headers = make(map[string]string, len(c.Fetch.Headers))
		for _, h := range c.Fetch.Headers {
			if strings.TrimSpace(h.Key) == "" {
				continue
			}
			req.Headers[h.Key] = r.e.templates.RenderString(h.Value, map[string]any{"data": r.in.Data})
		}
	}

	value, err := r.in.Fetcher.Fetch(r.ctx, req)
	if err != nil {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		r.logger.Emit(logging.LevelWarn, "Data source fetch failed", map[string]any{"path": t.Path, "error": err.Error()})
		return nil
	}
	value = normalizeValue(value)

	if !c.Fetch.MapFunction.Empty() {
		mapped, err := r.eval(t, -1, "mapFunction", c.Fetch.MapFunction, "value", value, map[string]any{"responseData": value})
		if err != nil {
			return err
		}
		value = mapped
	}

	datapath.Set(r.in.Data, t.Path, value)
	r.in.Scope.MarkFetched(t.Path, processing.Provenance{
		Source:   c.Fetch.DataSrc,
		Resource: c.Fetch.Resource,
		URL:      req.URL,
	})
	return nil
}

func (r *runner) customDefault(t *processing.Target, rowIndex int) error {
	c := t.Component
	if c.CustomDefaultValue.Empty() || !c.IsInput() || datapath.Has(r.in.Data, t.Path) {
		return nil
	}
	value, err := r.eval(t, rowIndex, "customDefaultValue", c.CustomDefaultValue, "value", nil, nil)
	if err != nil {
		return err
	}
	if value != nil {
		datapath.Set(r.in.Data, t.Path, value)
	}
	return nil
}

func (r *runner) calculate(t *processing.Target, rowIndex int) error {
	c := t.Component
	if c.CalculateValue.Empty() || !c.IsInput() {
		return nil
	}
	current, has := datapath.Get(r.in.Data, t.Path)
	value, err := r.eval(t, rowIndex, "calculateValue", c.CalculateValue, "value", current, nil)
	if err != nil {
		return err
	}
	r.in.Scope.Calculated[t.Path] = value
	if c.AllowCalculateOverride && has && !processing.IsEmpty(current) {
		return nil
	}
	datapath.Set(r.in.Data, t.Path, value)
	return nil
}

func (r *runner) customConditional(t *processing.Target, rowIndex int) error {
	c := t.Component
	if c.CustomConditional.Empty() {
		return nil
	}
	value, err := r.eval(t, rowIndex, "customConditional", c.CustomConditional, "show", true, nil)
	if err != nil {
		return err
	}
	if truthy(value) {
		processing.Show(r.in.Scope, t)
		return nil
	}
	processing.Hide(r.in.Data, r.in.Scope, t)
	return nil
}

func (r *runner) logic(t *processing.Target, rowIndex int) error {
	c := t.Component
	for _, logic := range c.Logic {
		if !strings.EqualFold(logic.Trigger.Type, "javascript") || logic.Trigger.Javascript.Empty() {
			continue
		}
		fired, err := r.eval(t, rowIndex, "logic", logic.Trigger.Javascript, "result", false, nil)
		if err != nil {
			return err
		}
		if !truthy(fired) {
			continue
		}
		for _, action := range logic.Actions {
			var script form.Expression
			switch action.Type {
			case "value":
				script = action.Value
			case "customAction":
				script = action.CustomAction
			default:
				r.logger.Emit(logging.LevelDebug, "Unsupported logic action", map[string]any{"path": t.Path, "type": action.Type})
				continue
			}
			if script.Empty() || !c.IsInput() {
				continue
			}
			current, _ := datapath.Get(r.in.Data, t.Path)
			value, err := r.eval(t, rowIndex, "logic", script, "value", current, nil)
			if err != nil {
				return err
			}
			datapath.Set(r.in.Data, t.Path, value)
		}
	}
	return nil
}

func (r *runner) customValidate(t *processing.Target, rowIndex int) error {
	c := t.Component
	if c.Validate == nil || c.Validate.Custom.Empty() || !c.IsInput() {
		return nil
	}
	value, err := r.eval(t, rowIndex, "custom", c.Validate.Custom, "valid", true, nil)
	if err != nil {
		return err
	}

	current, _ := datapath.Get(r.in.Data, t.Path)
	f := findings.New(c.Key, t.Path, processing.ScriptRule, map[string]any{
		"label": c.DisplayLabel(),
		"value": current,
	})
	switch typed := value.(type) {
	case bool:
		if typed {
			return nil
		}
		if msg := strings.TrimSpace(c.Validate.CustomMessage); msg != "" {
			f.Template = msg
		}
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		// returned strings may echo submitted input and are never templates
		f.Message = typed
	case nil:
		return nil
	default:
		if truthy(typed) {
			return nil
		}
	}
	r.in.Scope.AddError(f)
	return nil
}

// eval runs script as the body of a function whose parameters are the script
// variables plus outVar, returning outVar after the body ran.
func (r *runner) eval(t *processing.Target, rowIndex int, kind string, script form.Expression, outVar string, initial any, extra map[string]any) (any, error) {
	extraNames := sortedKeys(extra)
	params := append(append(append([]string(nil), scriptParams...), extraNames...), outVar)
	source := "(function(" + strings.Join(params, ", ") + ") {\n" + string(script) + "\n;return " + outVar + ";\n})"

	program, err := r.e.compile(kind, source)
	if err != nil {
		return nil, &ScriptError{Path: t.Path, Key: t.Component.Key, Kind: kind, Err: err}
	}
	fnValue, err := r.vm.RunProgram(program)
	if err != nil {
		return nil, classify(err, &ScriptError{Path: t.Path, Key: t.Component.Key, Kind: kind})
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, &ScriptError{Path: t.Path, Key: t.Component.Key, Kind: kind, Err: errors.New("script did not compile to a function")}
	}

	var rowIdx goja.Value = goja.Undefined()
	if rowIndex >= 0 {
		rowIdx = r.vm.ToValue(rowIndex)
	}
	var tokens any
	if r.in.Tokens != nil {
		tokens = r.in.Tokens
	}
	args := []goja.Value{
		r.vm.ToValue(r.in.Data),
		r.vm.ToValue(t.Row),
		rowIdx,
		r.componentValue(t.Component),
		r.formValue,
		r.configVal,
		r.submission,
		r.vm.ToValue(r.in.Token),
		r.vm.ToValue(tokens),
		r.vm.ToValue(t.Path),
		goja.Null(),
		r.vm.ToValue(valueAt(r.in.Data, t.Path)),
	}
	for _, name := range extraNames {
		args = append(args, r.vm.ToValue(extra[name]))
	}
	args = append(args, r.vm.ToValue(initial))

	out, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, classify(err, &ScriptError{Path: t.Path, Key: t.Component.Key, Kind: kind})
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, nil
	}
	return normalizeValue(out.Export()), nil
}

func (r *runner) componentValue(c *form.Component) goja.Value {
	if cached, ok := r.components[c]; ok {
		return cached
	}
	value := r.vm.ToValue(c.Map())
	r.components[c] = value
	return value
}

func valueAt(data map[string]any, path string) any {
	if path == "" {
		return nil
	}
	value, _ := datapath.Get(data, path)
	return value
}

// classify turns goja failures into sandbox errors. Interrupts carry the
// value passed to Interrupt, which is returned as is.
func classify(err error, target *ScriptError) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if inner, ok := interrupted.Value().(error); ok {
			return inner
		}
		return &TimeoutError{}
	}
	target.Err = err
	return target
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0
	case int64:
		return typed != 0
	default:
		return true
	}
}

func toPlain(value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
