package sandbox

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

//go:embed assets/lodash.js
var lodashSource string

var (
	lodashOnce    sync.Once
	lodashProgram *goja.Program
	lodashErr     error
)

func lodash() (*goja.Program, error) {
	lodashOnce.Do(func() {
		lodashProgram, lodashErr = goja.Compile("lodash.js", lodashSource, false)
	})
	return lodashProgram, lodashErr
}

type binding struct {
	name  string
	value any
}

// installHelpers binds the libraries every script can use: `_`, `moment`,
// `nunjucks`, `Inputmask`, `jsonpatch`, `utils` (also as `util`) and
// `console`.
//
// Helpers doing work in Go check ctx on entry and throw once it is done, so
// an interrupted run stops at the next helper call.
func installHelpers(ctx context.Context, vm *goja.Runtime, e *Evaluator, in *Input) error {
	program, err := lodash()
	if err != nil {
		return fmt.Errorf("sandbox: compile lodash: %w", err)
	}
	underscore, err := vm.RunProgram(program)
	if err != nil {
		return classify(err, &ScriptError{Kind: "dependency", Key: "_"})
	}
	obj := underscore.ToObject(vm)
	if err := obj.Set("isEqual", func(a, b goja.Value) bool {
		return cmp.Equal(exportValue(a), exportValue(b))
	}); err != nil {
		return err
	}

	live := func() {
		if err := ctx.Err(); err != nil {
			throw(vm, err)
		}
	}
	utils := utilsObject(vm, e, in, live)
	installs := []binding{
		{"_", obj},
		{"moment", newMomentFactory(vm, false, live)},
		{"nunjucks", nunjucksObject(vm, e, live)},
		{"Inputmask", inputmaskObject(vm, live)},
		{"jsonpatch", jsonpatchObject(vm, live)},
		{"utils", utils},
		{"util", utils},
		{"console", consoleObject(vm, *in.Logger)},
	}
	for _, item := range installs {
		if err := vm.Set(item.name, item.value); err != nil {
			return fmt.Errorf("sandbox: install %s: %w", item.name, err)
		}
	}
	return nil
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return normalizeValue(v.Export())
}

// roundTrip copies a script value through JSON so Go code sees the plain
// decoded shape.
func roundTrip(v goja.Value, target any) error {
	raw, err := json.Marshal(exportValue(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func throw(vm *goja.Runtime, err error) {
	panic(vm.NewGoError(err))
}

func nunjucksObject(vm *goja.Runtime, e *Evaluator, live func()) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("renderString", func(source string, ctx goja.Value) string {
		live()
		data, _ := exportValue(ctx).(map[string]any)
		return e.templates.RenderString(source, data)
	})
	return obj
}

func jsonpatchObject(vm *goja.Runtime, live func()) *goja.Object {
	obj := vm.NewObject()
	decode := func(raw []byte) any {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			throw(vm, err)
		}
		return out
	}
	encode := func(v goja.Value) []byte {
		live()
		raw, err := json.Marshal(exportValue(v))
		if err != nil {
			throw(vm, err)
		}
		return raw
	}

	_ = obj.Set("applyPatch", func(doc, ops goja.Value) map[string]any {
		patch, err := jsonpatch.DecodePatch(encode(ops))
		if err != nil {
			throw(vm, err)
		}
		out, err := patch.Apply(encode(doc))
		if err != nil {
			throw(vm, err)
		}
		return map[string]any{"newDocument": decode(out)}
	})
	mergePatch := func(doc, patch goja.Value) any {
		out, err := jsonpatch.MergePatch(encode(doc), encode(patch))
		if err != nil {
			throw(vm, err)
		}
		return decode(out)
	}
	_ = obj.Set("mergePatch", mergePatch)
	_ = obj.Set("applyMergePatch", mergePatch)
	// diff returns the RFC 7386 merge patch turning original into modified.
	diff := func(original, modified goja.Value) any {
		out, err := jsonpatch.CreateMergePatch(encode(original), encode(modified))
		if err != nil {
			throw(vm, err)
		}
		return decode(out)
	}
	_ = obj.Set("diff", diff)
	_ = obj.Set("createMergePatch", diff)
	_ = obj.Set("equal", func(a, b goja.Value) bool {
		return jsonpatch.Equal(encode(a), encode(b))
	})
	return obj
}

func consoleObject(vm *goja.Runtime, logger logging.Logger) *goja.Object {
	obj := vm.NewObject()
	slot := func(level logging.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			logger.Emit(level, strings.Join(parts, " "), map[string]any{"source": "script"})
			return goja.Undefined()
		}
	}
	_ = obj.Set("log", slot(logging.LevelDebug))
	_ = obj.Set("debug", slot(logging.LevelDebug))
	_ = obj.Set("info", slot(logging.LevelInfo))
	_ = obj.Set("warn", slot(logging.LevelWarn))
	_ = obj.Set("error", slot(logging.LevelError))
	return obj
}

func utilsObject(vm *goja.Runtime, e *Evaluator, in *Input, live func()) *goja.Object {
	obj := vm.NewObject()

	// getComponent(components, key) or getComponent(key) against the form.
	_ = obj.Set("getComponent", func(call goja.FunctionCall) goja.Value {
		components := in.Components
		keyArg := call.Argument(0)
		if len(call.Arguments) > 1 {
			var list []form.Component
			if err := roundTrip(call.Argument(0), &list); err != nil {
				throw(vm, err)
			}
			components = list
			keyArg = call.Argument(1)
		}
		found := form.FindByKey(components, keyArg.String())
		if found == nil {
			return goja.Null()
		}
		return vm.ToValue(found.Map())
	})
	_ = obj.Set("isEmpty", func(v goja.Value) bool {
		return processing.IsEmpty(exportValue(v))
	})
	_ = obj.Set("getValue", func(data goja.Value, key string) any {
		value, _ := findValue(exportValue(data), key)
		return value
	})
	_ = obj.Set("interpolate", func(source string, ctx goja.Value) string {
		live()
		data, _ := exportValue(ctx).(map[string]any)
		return e.templates.RenderString(source, data)
	})
	_ = obj.Set("checkCondition", func(component, row, data goja.Value) bool {
		live()
		var c form.Component
		if err := roundTrip(component, &c); err != nil {
			throw(vm, err)
		}
		rowMap, _ := exportValue(row).(map[string]any)
		dataMap, _ := exportValue(data).(map[string]any)
		if dataMap == nil {
			dataMap = in.Data
		}
		visible, err := processing.CheckConditional(c.Conditional, processing.ConditionInput{
			Data: dataMap,
			Row:  rowMap,
			Path: c.Key,
		}, nil)
		if err != nil {
			throw(vm, err)
		}
		return visible
	})
	return obj
}

// findValue resolves key as a path first and then searches nested objects
// and rows for the first property named key.
func findValue(data any, key string) (any, bool) {
	if value, ok := datapath.Get(data, key); ok {
		return value, true
	}
	switch typed := data.(type) {
	case map[string]any:
		for _, name := range sortedKeys(typed) {
			if value, ok := findValue(typed[name], key); ok {
				return value, true
			}
		}
	case []any:
		for _, item := range typed {
			if value, ok := findValue(item, key); ok {
				return value, true
			}
		}
	}
	return nil, false
}
