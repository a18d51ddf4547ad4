package formvalidator

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/hooks"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/metrics"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/resources"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger slots. Slots left nil drop their level.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithVMTimeout sets the default sandbox timeout. Zero keeps
// sandbox.DefaultTimeout.
func WithVMTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.vmTimeout = timeout
	}
}

// WithDependencies adds static libraries available to every script.
func WithDependencies(deps ...sandbox.Dependency) Option {
	return func(s *Service) {
		s.dependencies = append(s.dependencies, deps...)
	}
}

// WithHooks installs the extension point registry.
func WithHooks(registry *hooks.Registry) Option {
	return func(s *Service) {
		if registry != nil {
			s.hooks = registry
		}
	}
}

// WithLoader sets how form references are resolved.
func WithLoader(loader formsource.FormLoader) Option {
	return func(s *Service) {
		s.loader = loader
	}
}

// WithStore uses store for dereferencing, uniqueness and data sources.
func WithStore(store resources.Store) Option {
	return func(s *Service) {
		if store == nil {
			return
		}
		s.resources = store
		s.unique = store
		s.fetcher = store
	}
}

// WithResources sets the resource loader used to dereference datatables.
func WithResources(loader processing.ResourceLoader) Option {
	return func(s *Service) {
		s.resources = loader
	}
}

// WithUniqueChecker sets the checker behind unique components.
func WithUniqueChecker(checker processing.UniqueChecker) Option {
	return func(s *Service) {
		s.unique = checker
	}
}

// WithFetcher sets the fetcher used for component data sources.
func WithFetcher(fetcher sandbox.Fetcher) Option {
	return func(s *Service) {
		s.fetcher = fetcher
	}
}

// WithMetrics records validations and stage timings on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = collector
	}
}

// WithTracer sets the tracer; the global provider is used otherwise.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithInterpolator sets the message renderer.
func WithInterpolator(interp *findings.Interpolator) Option {
	return func(s *Service) {
		if interp != nil {
			s.interpolator = interp
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
