package validator

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/hooks"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
	"github.com/goliatone/go-formio-validator/pkg/visibility"
)

// Options are the per call settings of the pipeline. They are logged at
// debug level before the sandbox stage runs.
type Options struct {
	// Config overrides form and project configuration.
	Config map[string]any `json:"config,omitempty"`
	// ProjectConfig overrides the form configuration.
	ProjectConfig map[string]any `json:"projectConfig,omitempty"`
	// VMTimeout bounds the sandbox stage. Zero uses the evaluator default.
	VMTimeout time.Duration `json:"vmTimeout,omitempty"`
	// Resources backs datatable dereferencing in the default database.
	Resources processing.ResourceLoader `json:"-"`
	// Unique backs uniqueness checks in the default database.
	Unique processing.UniqueChecker `json:"-"`
}

// Observer receives stage timings. pkg/metrics implements it.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Option configures a Validator.
type Option func(*Validator)

// WithHooks installs the extension point registry.
func WithHooks(registry *hooks.Registry) Option {
	return func(v *Validator) {
		if registry != nil {
			v.hooks = registry
		}
	}
}

// WithEvaluator sets the sandbox used for script evaluation. Without one a
// default evaluator is built.
func WithEvaluator(evaluator *sandbox.Evaluator) Option {
	return func(v *Validator) {
		v.evaluator = evaluator
	}
}

// WithLogger sets the logger slots.
func WithLogger(logger logging.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithOptions sets the configuration layers and the sandbox timeout.
// Database backends set through WithResources and WithUniqueChecker are kept.
func WithOptions(opts Options) Option {
	return func(v *Validator) {
		v.opts.Config = opts.Config
		v.opts.ProjectConfig = opts.ProjectConfig
		v.opts.VMTimeout = opts.VMTimeout
		if opts.Resources != nil {
			v.opts.Resources = opts.Resources
		}
		if opts.Unique != nil {
			v.opts.Unique = opts.Unique
		}
	}
}

// WithResources sets the loader used by the default database capability to
// dereference datatable resources.
func WithResources(loader processing.ResourceLoader) Option {
	return func(v *Validator) {
		v.opts.Resources = loader
	}
}

// WithUniqueChecker sets the checker used by the default database
// capability.
func WithUniqueChecker(checker processing.UniqueChecker) Option {
	return func(v *Validator) {
		v.opts.Unique = checker
	}
}

// WithFetcher sets the fetcher used for component data sources.
func WithFetcher(fetcher sandbox.Fetcher) Option {
	return func(v *Validator) {
		v.fetcher = fetcher
	}
}

// WithInterpolator sets the message renderer.
func WithInterpolator(interp *findings.Interpolator) Option {
	return func(v *Validator) {
		if interp != nil {
			v.interpolator = interp
		}
	}
}

// WithVisibility replaces the evaluator used for conditional rule strings.
func WithVisibility(eval visibility.Evaluator) Option {
	return func(v *Validator) {
		v.visibility = eval
	}
}

// WithObserver reports stage timings to o.
func WithObserver(o Observer) Option {
	return func(v *Validator) {
		v.observer = o
	}
}

// WithTracer sets the tracer used for stage spans. The global provider is
// used otherwise.
func WithTracer(tracer trace.Tracer) Option {
	return func(v *Validator) {
		if tracer != nil {
			v.tracer = tracer
		}
	}
}
