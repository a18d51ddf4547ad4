package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/goliatone/go-formio-validator/pkg/logging"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path, e.g. "resources.base_url".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks cfg and returns a ValidationError listing every problem.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Server.ListenAddress) == "" {
		add("server.listen_address", "must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 || cfg.Server.ShutdownTimeout < 0 {
		add("server", "timeouts must not be negative")
	}

	if cfg.Validator.VMTimeout <= 0 {
		add("validator.vm_timeout", "must be positive")
	}
	seen := make(map[string]bool)
	for i, dep := range cfg.Validator.Dependencies {
		field := fmt.Sprintf("validator.dependencies[%d]", i)
		if strings.TrimSpace(dep.Name) == "" {
			add(field+".name", "must not be empty")
		} else if seen[dep.Name] {
			add(field+".name", "duplicate dependency %q", dep.Name)
		}
		seen[dep.Name] = true
		if strings.TrimSpace(dep.Path) == "" {
			add(field+".path", "must not be empty")
		}
	}

	if cfg.Forms.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Forms.PurgeSchedule); err != nil {
			add("forms.purge_schedule", "invalid cron expression: %v", err)
		}
	}
	if len(cfg.Forms.URLPrefixes) > 0 && !cfg.Forms.AllowHTTP {
		add("forms.url_prefixes", "requires forms.allow_http")
	}
	for i, prefix := range cfg.Forms.URLPrefixes {
		parsed, err := url.Parse(prefix)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			add(fmt.Sprintf("forms.url_prefixes[%d]", i), "must be an absolute http(s) URL")
		}
	}

	switch cfg.Resources.Backend {
	case "none", "memory":
	case "sqlite":
		if strings.TrimSpace(cfg.Resources.SQLitePath) == "" {
			add("resources.sqlite_path", "required for the sqlite backend")
		}
	case "http":
		parsed, err := url.Parse(cfg.Resources.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			add("resources.base_url", "must be an absolute URL for the http backend")
		}
	default:
		add("resources.backend", "unknown backend %q (none, memory, sqlite, http)", cfg.Resources.Backend)
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	switch logging.Format(strings.ToLower(cfg.Logging.Format)) {
	case logging.FormatJSON, logging.FormatText:
	default:
		add("logging.format", "must be json or text")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "must start with /")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
