// Package config loads the formvalidate service configuration from YAML with
// defaults, validation and FORMVALIDATE_* environment overrides.
package config

import "time"

// Config is the root configuration of the formvalidate service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Validator ValidatorConfig `yaml:"validator"`
	Forms     FormsConfig     `yaml:"forms"`
	Resources ResourcesConfig `yaml:"resources"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ValidatorConfig configures the sandbox.
type ValidatorConfig struct {
	VMTimeout time.Duration `yaml:"vm_timeout"`
	// Dependencies are JavaScript files injected into every runtime.
	Dependencies []DependencyConfig `yaml:"dependencies"`
	// ProjectConfig is passed to every validation as project config.
	ProjectConfig map[string]any `yaml:"project_config"`
}

// DependencyConfig names a JavaScript library file.
type DependencyConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// FormsConfig configures form resolution for named routes.
type FormsConfig struct {
	// Dir holds <name>.json or <name>.yaml form definitions.
	Dir string `yaml:"dir"`
	// Watch drops cached forms when their file changes.
	Watch bool `yaml:"watch"`
	// PurgeSchedule is a cron expression for clearing the whole cache.
	PurgeSchedule  string        `yaml:"purge_schedule"`
	AllowHTTP      bool          `yaml:"allow_http"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// URLPrefixes lists the form URLs the serve API may fetch on behalf of
	// a formUrl request. The API refuses formUrl when it is empty.
	URLPrefixes []string `yaml:"url_prefixes"`
}

// ResourcesConfig selects the store behind dereferencing, uniqueness and
// data sources.
type ResourcesConfig struct {
	// Backend is one of none, memory, sqlite or http.
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
