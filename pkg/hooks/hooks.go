package hooks

import (
	"context"
	"sort"
	"strings"
)

// Well-known extension points used by the validation pipeline.
const (
	// DatabaseHooks alters the database capability installed into the
	// processing config.
	DatabaseHooks = "validationDatabaseHooks"
	// ServerRules alters the ordered structural rule set.
	ServerRules = "serverRules"
	// DynamicVMDependencies alters the extra dependencies injected into the
	// sandbox for a form.
	DynamicVMDependencies = "dynamicVmDependencies"
	// ValidateSubmission is invoked before the pipeline runs; a true result
	// means the host handled the submission and validation is skipped.
	ValidateSubmission = "validateSubmission"
	// ValidationResult alters the final result returned to callers.
	ValidationResult = "validationResult"
	// Settings provides host settings through Registry.Settings.
	Settings = "settings"
)

// InvokeFunc is a predicate-style hook. A nil return counts as handled.
type InvokeFunc func(args ...any) any

// Callback receives the outcome of an asynchronous alter call.
type Callback func(err error, value any)

// AlterFunc is a transform-style hook. next is nil for synchronous calls;
// when non-nil the hook may deliver its result through next instead of the
// return value.
type AlterFunc func(value any, args []any, next Callback) any

// SettingsFunc supplies host settings, either directly or through next.
type SettingsFunc func(ctx context.Context, settings map[string]any, next Callback) any

type kind int

const (
	kindInvoke kind = iota
	kindAlter
)

type entry struct {
	kind   kind
	invoke InvokeFunc
	alter  AlterFunc
}

// Registry dispatches named extension points. Entries are fixed at
// construction; an empty registry behaves as a pass-through, so the pipeline
// can run without any host customisation. A Registry is safe for concurrent
// use because it is never mutated after New returns.
type Registry struct {
	entries  map[string]entry
	settings map[string]any
	settFn   SettingsFunc
}

// Option registers hooks while the registry is being built.
type Option func(*Registry)

// WithInvoke registers a predicate hook. Registering the same name twice keeps
// the latest function.
func WithInvoke(name string, fn InvokeFunc) Option {
	return func(r *Registry) {
		key := normalizeName(name)
		if key == "" || fn == nil {
			return
		}
		r.entries[key] = entry{kind: kindInvoke, invoke: fn}
	}
}

// WithAlter registers a transform hook.
func WithAlter(name string, fn AlterFunc) Option {
	return func(r *Registry) {
		key := normalizeName(name)
		if key == "" || fn == nil {
			return
		}
		r.entries[key] = entry{kind: kindAlter, alter: fn}
	}
}

// WithSyncAlter registers a transform hook that never uses the callback.
func WithSyncAlter(name string, fn func(value any, args ...any) any) Option {
	if fn == nil {
		return func(*Registry) {}
	}
	return WithAlter(name, func(value any, args []any, next Callback) any {
		out := fn(value, args...)
		if next != nil {
			next(nil, out)
		}
		return out
	})
}

// WithSettings seeds the settings returned by Registry.Settings and
// optionally registers a hook that can rewrite them.
func WithSettings(settings map[string]any, fn SettingsFunc) Option {
	return func(r *Registry) {
		if settings != nil {
			r.settings = make(map[string]any, len(settings))
			for key, value := range settings {
				r.settings[key] = value
			}
		}
		r.settFn = fn
	}
}

// New builds a registry from the supplied options.
func New(options ...Option) *Registry {
	r := &Registry{entries: make(map[string]entry)}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Invoke calls the predicate hook registered under name. Missing hooks, and
// hooks registered as transforms, report false.
func (r *Registry) Invoke(name string, args ...any) bool {
	e, ok := r.lookup(name)
	if !ok || e.kind != kindInvoke {
		return false
	}
	out := e.invoke(args...)
	if out == nil {
		return true
	}
	return Truthy(out)
}

// Alter passes value through the transform hook registered under name and
// returns the result. Without a hook value is returned unchanged.
func (r *Registry) Alter(name string, value any, args ...any) any {
	e, ok := r.lookup(name)
	if !ok || e.kind != kindAlter {
		return value
	}
	return e.alter(value, args, nil)
}

// AlterAsync is the callback form of Alter. Without a hook next receives
// (nil, value) immediately; with a hook, the hook decides whether and when
// next is called.
func (r *Registry) AlterAsync(name string, value any, next Callback, args ...any) any {
	e, ok := r.lookup(name)
	if !ok || e.kind != kindAlter {
		if next != nil {
			next(nil, value)
			return nil
		}
		return value
	}
	return e.alter(value, args, next)
}

// Has reports whether any hook is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names lists registered hook names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings returns the configured settings, routed through the settings hook
// when one is registered.
func (r *Registry) Settings(ctx context.Context, next Callback) {
	if next == nil {
		return
	}
	settings := map[string]any{}
	if r != nil {
		for key, value := range r.settings {
			settings[key] = value
		}
		if r.settFn != nil {
			r.settFn(ctx, settings, next)
			return
		}
	}
	next(nil, settings)
}

func (r *Registry) lookup(name string) (entry, bool) {
	if r == nil || len(r.entries) == 0 {
		return entry{}, false
	}
	e, ok := r.entries[normalizeName(name)]
	return e, ok
}

// AlterAs runs Alter and asserts the result back to T. A hook that returns a
// value of another type is ignored and def is returned.
func AlterAs[T any](r *Registry, name string, def T, args ...any) T {
	out := r.Alter(name, def, args...)
	if typed, ok := out.(T); ok {
		return typed
	}
	return def
}

// Truthy mirrors loose boolean coercion for hook results.
func Truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	case error:
		return typed != nil
	default:
		return true
	}
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
