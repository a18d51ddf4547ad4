// Package formvalidator validates Form.io submissions on the server.
//
// A Service resolves the form definition, runs the structural and scripted
// validation pipeline and maps the outcome into a Result that is always
// returned, never thrown:
//
//	svc, err := formvalidator.New(formvalidator.WithVMTimeout(2 * time.Second))
//	if err != nil {
//		return err
//	}
//	res := svc.ValidateSubmission(ctx, formsource.FromFile("forms/contact.json"), data, formvalidator.ValidationOptions{})
//	if !res.Success {
//		// res.Errors holds findings, res.Error a runtime failure
//	}
package formvalidator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/hooks"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/metrics"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
	"github.com/goliatone/go-formio-validator/pkg/validator"
)

const moduleName = "FormValidator"

// Service validates submissions. It is safe for concurrent use.
type Service struct {
	logger       logging.Logger
	hooks        *hooks.Registry
	loader       formsource.FormLoader
	evaluator    *sandbox.Evaluator
	interpolator *findings.Interpolator
	resources    processing.ResourceLoader
	unique       processing.UniqueChecker
	fetcher      sandbox.Fetcher
	metrics      *metrics.Collector
	tracer       trace.Tracer
	now          func() time.Time

	vmTimeout    time.Duration
	dependencies []sandbox.Dependency
}

// New configures the sandbox once with the static dependencies and timeout.
func New(options ...Option) (*Service, error) {
	s := &Service{
		hooks:        hooks.New(),
		interpolator: findings.Default(),
		now:          time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.loader == nil {
		s.loader = formsource.NewLoader(formsource.WithHTTP(true), formsource.WithRequestTimeout(30*time.Second))
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/goliatone/go-formio-validator")
	}

	evaluator, err := sandbox.New(sandbox.Config{
		Dependencies: s.dependencies,
		Timeout:      s.vmTimeout,
		Logger:       s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("formvalidator: configure sandbox: %w", err)
	}
	s.evaluator = evaluator
	return s, nil
}

// ValidationOptions are the per call settings.
type ValidationOptions struct {
	// Tokens is the caller's token bag; x-jwt-token is exposed to scripts.
	Tokens map[string]string `json:"tokens,omitempty"`
	// SubmissionMeta is merged into the submission envelope next to data.
	SubmissionMeta map[string]any `json:"submissionMeta,omitempty"`
	// VMTimeout overrides the configured sandbox timeout for this call.
	VMTimeout time.Duration `json:"vmTimeout,omitempty"`
	// Config overrides form and project configuration.
	Config map[string]any `json:"config,omitempty"`
	// ProjectConfig overrides the form configuration.
	ProjectConfig map[string]any `json:"projectConfig,omitempty"`
}

// ValidateSubmission resolves ref and validates data against it. Errors never
// escape: findings land in Result.Errors and any other failure, including a
// recovered panic, in Result.Error.
func (s *Service) ValidateSubmission(ctx context.Context, ref formsource.Reference, data map[string]any, opts ValidationOptions) (result Result) {
	start := s.now()
	requestID := uuid.NewString()
	logger := s.logger.With(map[string]any{"module": moduleName, "requestId": requestID})

	ctx, span := s.tracer.Start(ctx, "formvalidator.ValidateSubmission")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = s.failure(logger, requestID, fmt.Errorf("formvalidator: panic: %v", r))
		}
		if s.metrics != nil {
			s.metrics.ObserveValidation(outcome(result), s.now().Sub(start), len(result.Errors))
		}
	}()

	logger.Emit(logging.LevelDebug, "Validating submission data against form", nil)

	f, err := s.loader.Load(ctx, ref)
	if err != nil {
		return s.failure(logger, requestID, err)
	}

	if s.hooks.Invoke(hooks.ValidateSubmission, f, data, opts) {
		logger.Emit(logging.LevelDebug, "Validation handled by host", nil)
		return s.alter(Result{Success: true, Skipped: true, Timestamp: s.now(), RequestID: requestID}, f)
	}

	v, err := validator.New(f, opts.Tokens, s.validatorOptions(logger, opts)...)
	if err != nil {
		return s.failure(logger, requestID, err)
	}

	sub := &validator.Submission{Data: data, Meta: opts.SubmissionMeta}
	out, components, err := v.Validate(ctx, sub)

	var verr *findings.ValidationError
	switch {
	case errors.As(err, &verr):
		result = Result{Errors: verr.Details}
	case err != nil:
		return s.failure(logger, requestID, err)
	default:
		result = Result{Success: true, Data: out, Components: components}
	}
	result.Scope = sub.Scope
	result.Timestamp = s.now()
	result.RequestID = requestID

	logger.Emit(logging.LevelInfo, "Validation completed.", map[string]any{
		"succeeded": result.Success,
		"errors":    len(result.Errors),
	})
	return s.alter(result, f)
}

func (s *Service) validatorOptions(logger logging.Logger, opts ValidationOptions) []validator.Option {
	options := []validator.Option{
		validator.WithHooks(s.hooks),
		validator.WithEvaluator(s.evaluator),
		validator.WithLogger(logger),
		validator.WithInterpolator(s.interpolator),
		validator.WithTracer(s.tracer),
		validator.WithFetcher(s.fetcher),
		validator.WithOptions(validator.Options{
			Config:        opts.Config,
			ProjectConfig: opts.ProjectConfig,
			VMTimeout:     opts.VMTimeout,
			Resources:     s.resources,
			Unique:        s.unique,
		}),
	}
	if s.metrics != nil {
		options = append(options, validator.WithObserver(s.metrics))
	}
	return options
}

func (s *Service) alter(result Result, f *form.Form) Result {
	return hooks.AlterAs(s.hooks, hooks.ValidationResult, result, f)
}

func (s *Service) failure(logger logging.Logger, requestID string, err error) Result {
	logger.Emit(logging.LevelError, "Validation service error.", map[string]any{"error": err.Error()})
	return Result{
		Error:     &Failure{Message: err.Error(), Type: ErrorType(err)},
		Timestamp: s.now(),
		RequestID: requestID,
	}
}

// ValidateSubmission builds a Service from options and validates a single
// submission with it.
func ValidateSubmission(ctx context.Context, ref formsource.Reference, data map[string]any, opts ValidationOptions, options ...Option) Result {
	svc, err := New(options...)
	if err != nil {
		return Result{
			Error:     &Failure{Message: err.Error(), Type: ErrorType(err)},
			Timestamp: time.Now(),
		}
	}
	return svc.ValidateSubmission(ctx, ref, data, opts)
}
