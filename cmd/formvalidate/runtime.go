package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	formvalidator "github.com/goliatone/go-formio-validator"
	"github.com/goliatone/go-formio-validator/internal/config"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/metrics"
	"github.com/goliatone/go-formio-validator/pkg/resources"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// formExtensions are tried in order when resolving a named form.
var formExtensions = []string{".json", ".yaml", ".yml"}

// runtime bundles what the commands share: the configured service and the
// pieces the serve command manages on top of it.
type runtime struct {
	cfg     *config.Config
	slog    *slog.Logger
	logger  logging.Logger
	service *formvalidator.Service
	cache   *formsource.Cache
	metrics *metrics.Collector
	closers []io.Closer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newRuntime wires the service from cfg. watch enables file watching on the
// form cache.
func newRuntime(cfg *config.Config, watch bool) (*runtime, error) {
	base, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, slog: base, logger: logging.FromSlog(base)}

	deps, err := readDependencies(cfg.Validator.Dependencies)
	if err != nil {
		return nil, err
	}

	loader := formsource.NewLoader(
		formsource.WithHTTP(cfg.Forms.AllowHTTP),
		formsource.WithRequestTimeout(cfg.Forms.RequestTimeout),
	)
	cache, err := formsource.NewCache(loader,
		formsource.WithWatch(watch),
		formsource.WithCacheLogger(rt.logger),
	)
	if err != nil {
		return nil, err
	}
	rt.cache = cache
	rt.closers = append(rt.closers, cache)

	options := []formvalidator.Option{
		formvalidator.WithLogger(rt.logger),
		formvalidator.WithLoader(cache),
		formvalidator.WithVMTimeout(cfg.Validator.VMTimeout),
		formvalidator.WithDependencies(deps...),
	}

	store, err := rt.openStore()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if store != nil {
		options = append(options, formvalidator.WithStore(store))
	}

	if cfg.Metrics.Enabled {
		rt.metrics = metrics.NewCollector(metrics.Config{Namespace: cfg.Metrics.Namespace}, nil)
		options = append(options, formvalidator.WithMetrics(rt.metrics))
	}

	service, err := formvalidator.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.service = service
	return rt, nil
}

func (rt *runtime) openStore() (resources.Store, error) {
	rc := rt.cfg.Resources
	switch rc.Backend {
	case "memory":
		return resources.NewMemory(), nil
	case "sqlite":
		if dir := filepath.Dir(rc.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		db, err := resources.OpenSQLite(resources.SQLiteConfig{Path: rc.SQLitePath})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db)
		return db, nil
	case "http":
		return resources.NewHTTP(rc.BaseURL,
			resources.WithToken(rc.Token),
			resources.WithTimeout(rc.Timeout),
		)
	default:
		return nil, nil
	}
}

// options returns the per call settings shared by every command.
func (rt *runtime) options(tokens map[string]string) formvalidator.ValidationOptions {
	return formvalidator.ValidationOptions{
		Tokens:        tokens,
		ProjectConfig: rt.cfg.Validator.ProjectConfig,
	}
}

// Close releases the cache watcher and the store, in reverse order.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// resolveForm maps a route name onto <dir>/<name>.json, .yaml or .yml.
func resolveForm(dir, name string) (formsource.Reference, bool) {
	if name == "" || name != filepath.Base(name) || name == ".." {
		return nil, false
	}
	for _, ext := range formExtensions {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return formsource.FromFile(path), true
		}
	}
	return nil, false
}

func readDependencies(list []config.DependencyConfig) ([]sandbox.Dependency, error) {
	deps := make([]sandbox.Dependency, 0, len(list))
	for _, dep := range list {
		source, err := os.ReadFile(dep.Path)
		if err != nil {
			return nil, fmt.Errorf("read dependency %q: %w", dep.Name, err)
		}
		deps = append(deps, sandbox.Dependency{Name: dep.Name, Source: string(source)})
	}
	return deps, nil
}
