package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORMVALIDATE_"

// Load reads path, applies defaults and environment overrides, then
// validates. An empty path starts from the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg, os.LookupEnv)
	// overrides may select a backend whose defaults were not applied yet
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	str := func(name string, dst *string) {
		if val, ok := lookup(EnvPrefix + name); ok && val != "" {
			*dst = val
		}
	}
	dur := func(name string, dst *time.Duration) {
		if val, ok := lookup(EnvPrefix + name); ok && val != "" {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
			}
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := lookup(EnvPrefix + name); ok && val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	dur("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	dur("VALIDATOR_VM_TIMEOUT", &cfg.Validator.VMTimeout)

	str("FORMS_DIR", &cfg.Forms.Dir)
	boolean("FORMS_WATCH", &cfg.Forms.Watch)
	str("FORMS_PURGE_SCHEDULE", &cfg.Forms.PurgeSchedule)
	boolean("FORMS_ALLOW_HTTP", &cfg.Forms.AllowHTTP)
	dur("FORMS_REQUEST_TIMEOUT", &cfg.Forms.RequestTimeout)

	str("RESOURCES_BACKEND", &cfg.Resources.Backend)
	str("RESOURCES_SQLITE_PATH", &cfg.Resources.SQLitePath)
	str("RESOURCES_BASE_URL", &cfg.Resources.BaseURL)
	str("RESOURCES_TOKEN", &cfg.Resources.Token)
	dur("RESOURCES_TIMEOUT", &cfg.Resources.Timeout)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_PATH", &cfg.Metrics.Path)
	str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
}
