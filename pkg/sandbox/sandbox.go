// Package sandbox evaluates the scripts embedded in a form (calculated
// values, custom defaults, custom conditionals, logic and custom validation)
// inside an isolated goja runtime with a hard wall-clock timeout.
//
// An Evaluator is configured once with its static dependencies and reused
// across calls. Each call gets a fresh runtime that only exposes the injected
// helper libraries: there is no require, filesystem, network or process
// access from scripts. Calls operate on copies of the data and scope, so an
// aborted evaluation never leaks partial results.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

// DefaultTimeout bounds a single evaluation when neither the call nor the
// configuration sets one.
const DefaultTimeout = 5000 * time.Millisecond

// Dependency is a library made available to scripts under Name. Source is
// JavaScript run in every runtime before the form scripts; when it evaluates
// to a value that value is bound to Name. Value injects a Go value instead.
type Dependency struct {
	Name   string
	Source string
	Value  any
}

// Config configures an Evaluator. Templates renders the templates scripts
// pass to nunjucks and utils and those of fetch descriptors; it defaults to
// findings.NewScriptInterpolator.
type Config struct {
	Dependencies []Dependency
	Timeout      time.Duration
	Logger       logging.Logger
	Templates    *findings.Interpolator
}

// Fetcher loads external data for components declaring a fetch descriptor.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (any, error)
}

// FetchRequest describes one component level fetch.
type FetchRequest struct {
	Path     string
	Key      string
	DataSrc  string
	Resource string
	URL      string
	Method   string
	Headers  map[string]string
	Token    string
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (any, error)

// Fetch calls fn.
func (fn FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (any, error) {
	return fn(ctx, req)
}

// Input is the state handed to one evaluation. Logger, when set, replaces
// the evaluator logger for this evaluation.
type Input struct {
	Config         map[string]any
	Form           *form.Form
	Components     []form.Component
	Data           map[string]any
	Submission     map[string]any
	Scope          *processing.Scope
	Token          string
	Tokens         map[string]string
	Timeout        time.Duration
	AdditionalDeps []Dependency
	Fetcher        Fetcher
	Logger         *logging.Logger
}

// Output is the result of a completed evaluation.
type Output struct {
	Scope *processing.Scope
	Data  map[string]any
}

type compiledDependency struct {
	name    string
	program *goja.Program
	value   any
}

// Evaluator runs form scripts. It is safe for concurrent use.
type Evaluator struct {
	timeout   time.Duration
	logger    logging.Logger
	templates *findings.Interpolator
	deps      []compiledDependency
	programs  sync.Map // script cache: string -> *goja.Program
}

// New compiles the static dependencies and returns a ready Evaluator.
func New(cfg Config) (*Evaluator, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	templates := cfg.Templates
	if templates == nil {
		templates = findings.NewScriptInterpolator()
	}
	e := &Evaluator{
		timeout:   timeout,
		logger:    cfg.Logger.Module("sandbox"),
		templates: templates,
	}
	deps, err := e.compileDependencies(cfg.Dependencies)
	if err != nil {
		return nil, err
	}
	e.deps = deps
	e.logger.Emit(logging.LevelDebug, fmt.Sprintf("VM evaluator configured with timeout: %d", timeout.Milliseconds()), nil)
	return e, nil
}

// Timeout returns the configured default timeout.
func (e *Evaluator) Timeout() time.Duration {
	return e.timeout
}

func (e *Evaluator) compileDependencies(list []Dependency) ([]compiledDependency, error) {
	out := make([]compiledDependency, 0, len(list))
	for _, dep := range list {
		name := strings.TrimSpace(dep.Name)
		if strings.TrimSpace(dep.Source) == "" {
			if name == "" || dep.Value == nil {
				return nil, fmt.Errorf("sandbox: dependency %q needs a source or a value", name)
			}
			out = append(out, compiledDependency{name: name, value: dep.Value})
			continue
		}
		program, err := e.compile("dependency:"+name, dep.Source)
		if err != nil {
			return nil, fmt.Errorf("sandbox: compile dependency %q: %w", name, err)
		}
		out = append(out, compiledDependency{name: name, program: program})
	}
	return out, nil
}

func (e *Evaluator) compile(name, source string) (*goja.Program, error) {
	if cached, ok := e.programs.Load(source); ok {
		return cached.(*goja.Program), nil
	}
	program, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, err
	}
	e.programs.Store(source, program)
	return program, nil
}

type result struct {
	out *Output
	err error
}

// Evaluate runs every script of the form against a copy of the data and
// scope. It returns a *TimeoutError when the scripts do not finish within
// the timeout, a *ScriptError when one of them fails, and ctx.Err() when the
// context ends first.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*Output, error) {
	if in.Form == nil {
		return nil, errors.New("sandbox: form is required")
	}
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	logger := e.logger
	if in.Logger != nil {
		logger = in.Logger.Module("sandbox")
	}

	components := in.Components
	if components == nil {
		components = in.Form.Components
	}
	working := &Input{
		Config:         datapath.CloneMap(in.Config),
		Form:           in.Form,
		Components:     form.CloneAll(components),
		Data:           datapath.CloneMap(in.Data),
		Submission:     datapath.CloneMap(in.Submission),
		Scope:          in.Scope.Clone(),
		Token:          in.Token,
		Tokens:         in.Tokens,
		AdditionalDeps: in.AdditionalDeps,
		Fetcher:        in.Fetcher,
		Logger:         &logger,
	}
	if working.Data == nil {
		working.Data = make(map[string]any)
	}

	if !hasScripts(working.Components) && len(in.AdditionalDeps) == 0 {
		return &Output{Scope: working.Scope, Data: working.Data}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	vm := goja.New()
	done := make(chan result, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- result{err: &ScriptError{Kind: "runtime", Err: fmt.Errorf("panic: %v", recovered)}}
			}
		}()
		out, err := e.run(runCtx, vm, working)
		done <- result{out: out, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.out, res.err
	case <-timer.C:
		timeoutErr := &TimeoutError{Timeout: timeout}
		vm.Interrupt(timeoutErr)
		cancel()
		logger.Emit(logging.LevelError, timeoutErr.Error(), map[string]any{"timeout": timeout.Milliseconds()})
		return nil, timeoutErr
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		return nil, ctx.Err()
	}
}

// hasScripts reports whether any component carries something to evaluate.
func hasScripts(components []form.Component) bool {
	found := false
	form.Walk(components, func(c *form.Component, _ string, _ *form.Component) bool {
		if found {
			return false
		}
		if !c.CustomDefaultValue.Empty() || !c.CalculateValue.Empty() || !c.CustomConditional.Empty() ||
			len(c.Logic) > 0 || (c.Validate != nil && !c.Validate.Custom.Empty()) || fetches(c) {
			found = true
			return false
		}
		return true
	})
	return found
}

func fetches(c *form.Component) bool {
	if c.Fetch == nil {
		return false
	}
	switch c.Fetch.DataSrc {
	case "url":
		return strings.TrimSpace(c.Fetch.URL) != ""
	case "resource":
		return strings.TrimSpace(c.Fetch.Resource) != ""
	default:
		return false
	}
}

// ScriptError reports a script that threw or could not be compiled.
type ScriptError struct {
	Path string
	Key  string
	Kind string
	Err  error
}

func (e *ScriptError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sandbox: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("sandbox: %s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Type names the error in runtime failure results.
func (e *ScriptError) Type() string { return "ScriptError" }

// TimeoutError reports an evaluation aborted by the wall-clock timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Script execution timed out after %dms", e.Timeout.Milliseconds())
}

// Type names the error in runtime failure results.
func (e *TimeoutError) Type() string { return "TimeoutError" }
