package validator

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/hooks"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
	"github.com/goliatone/go-formio-validator/pkg/visibility"
)

// Stage names reported to observers and used as span names.
const (
	StageStructural = "structural"
	StageSandbox    = "sandbox"
	StageRevalidate = "revalidate"
	StageAggregate  = "aggregate"
)

const tracerName = "github.com/goliatone/go-formio-validator/pkg/validator"

// ErrNoForm is returned by New without a form.
var ErrNoForm = errors.New("validator: form is required")

// Validator validates submissions against one form.
type Validator struct {
	form         *form.Form
	tokens       map[string]string
	hooks        *hooks.Registry
	evaluator    *sandbox.Evaluator
	logger       logging.Logger
	opts         Options
	fetcher      sandbox.Fetcher
	interpolator *findings.Interpolator
	visibility   visibility.Evaluator
	observer     Observer
	tracer       trace.Tracer
}

// New builds a Validator for f. tokens is the caller's token bag; the
// x-jwt-token entry becomes the script visible token.
func New(f *form.Form, tokens map[string]string, options ...Option) (*Validator, error) {
	if f == nil {
		return nil, ErrNoForm
	}
	v := &Validator{
		form:         f,
		tokens:       tokens,
		hooks:        hooks.New(),
		interpolator: findings.Default(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(v)
	}
	v.logger = v.logger.Module("Validator")
	if v.evaluator == nil {
		evaluator, err := sandbox.New(sandbox.Config{Logger: v.logger})
		if err != nil {
			return nil, err
		}
		v.evaluator = evaluator
	}
	return v, nil
}

// Validate runs the pipeline. A submission without data succeeds without
// doing anything and returns nil data. A non-empty set of findings is
// returned as a *findings.ValidationError; any other error means a stage
// failed and the call was aborted.
//
// On success the returned data is sub.Data after normalization, scripts and
// cleanup, and components is the resolved component tree.
func (v *Validator) Validate(ctx context.Context, sub *Submission) (map[string]any, []form.Component, error) {
	v.logger.Emit(logging.LevelDebug, "Starting validation", nil)
	if sub == nil || sub.Data == nil {
		v.logger.Emit(logging.LevelDebug, "No data skipping validation", nil)
		return nil, nil, nil
	}

	ctx, span := v.tracer.Start(ctx, "validator.Validate", trace.WithAttributes(
		attribute.String("form.name", v.form.Name),
		attribute.String("form.path", v.form.Path),
	))
	defer span.End()

	pc := BuildContext(v.form, sub, v.tokens, v.hooks, v.opts)
	pc.Logger = v.logger
	if v.visibility != nil {
		processors := processing.SubmissionProcessors()
		processors[0] = processing.ConditionalProcessor(v.visibility)
		pc.Processors = processors
	}

	err := v.stage(ctx, StageStructural, func(ctx context.Context) error {
		return processing.Process(ctx, pc)
	})
	if err != nil {
		return v.fail(span, err)
	}
	sub.Data = pc.Data

	deps := AdditionalDependencies(v.hooks, v.form)
	v.logger.Emit(logging.LevelDebug, "OPTIONS", map[string]any{
		"config":        v.opts.Config,
		"projectConfig": v.opts.ProjectConfig,
		"vmTimeout":     v.opts.VMTimeout.Milliseconds(),
		"dependencies":  len(deps),
	})

	var out *sandbox.Output
	err = v.stage(ctx, StageSandbox, func(ctx context.Context) error {
		var evalErr error
		out, evalErr = v.evaluator.Evaluate(ctx, sandbox.Input{
			Config:         pc.Config.Map(),
			Form:           v.form,
			Components:     pc.Components.Components,
			Data:           pc.Data,
			Submission:     sub.Meta,
			Scope:          pc.Scope,
			Token:          pc.Config.Token,
			Tokens:         v.tokens,
			Timeout:        v.opts.VMTimeout,
			AdditionalDeps: deps,
			Fetcher:        v.fetcher,
			Logger:         &v.logger,
		})
		return evalErr
	})
	if err != nil {
		return v.fail(span, err)
	}
	before := pc.Data
	pc.Scope = out.Scope
	pc.Data = out.Data
	sub.Data = out.Data
	sub.Scope = out.Scope

	err = v.stage(ctx, StageRevalidate, func(ctx context.Context) error {
		return processing.Revalidate(ctx, pc, before)
	})
	if err != nil {
		return v.fail(span, err)
	}

	var verr *findings.ValidationError
	_ = v.stage(ctx, StageAggregate, func(context.Context) error {
		removeFetched(sub.Data, pc.Scope)
		verr = v.interpolator.ValidationError(pc.Scope.Errors, sub.Data)
		return nil
	})
	if verr != nil {
		span.SetAttributes(attribute.Int("validation.findings", len(verr.Details)))
		v.logger.Emit(logging.LevelDebug, "Validation failed", map[string]any{"findings": len(verr.Details)})
		return nil, nil, verr
	}
	return sub.Data, pc.Components.Components, nil
}

// ValidateFunc is Validate with a single completion callback, called exactly
// once.
func (v *Validator) ValidateFunc(ctx context.Context, sub *Submission, next func(err error, data map[string]any, components []form.Component)) {
	data, components, err := v.Validate(ctx, sub)
	if next != nil {
		next(err, data, components)
	}
}

func (v *Validator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := v.tracer.Start(ctx, "validator."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if v.observer != nil {
		v.observer.ObserveStage(name, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	v.logger.Emit(logging.LevelDebug, "Stage complete", map[string]any{"stage": name})
	return nil
}

func (v *Validator) fail(span trace.Span, err error) (map[string]any, []form.Component, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	v.logger.Emit(logging.LevelError, err.Error(), nil)
	return nil, nil, err
}

// removeFetched unsets every path populated from an external data source.
// Deeper paths go first so a parent removal never hides a child.
func removeFetched(data map[string]any, scope *processing.Scope) {
	if scope == nil || len(scope.Fetched) == 0 {
		return
	}
	paths := make([]string, 0, len(scope.Fetched))
	for path := range scope.Fetched {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
	for _, path := range paths {
		datapath.Unset(data, path)
	}
}
