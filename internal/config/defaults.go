package config

import "time"

// Default values for configuration fields.
const (
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultVMTimeout = 5 * time.Second

	DefaultFormsDir            = "./forms"
	DefaultFormsPurgeSchedule  = "@hourly"
	DefaultFormsRequestTimeout = 30 * time.Second

	DefaultResourcesBackend    = "none"
	DefaultResourcesSQLitePath = "data/resources.db"
	DefaultResourcesTimeout    = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "formvalidate"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Validator.VMTimeout == 0 {
		cfg.Validator.VMTimeout = DefaultVMTimeout
	}

	if cfg.Forms.Dir == "" {
		cfg.Forms.Dir = DefaultFormsDir
	}
	if cfg.Forms.PurgeSchedule == "" {
		cfg.Forms.PurgeSchedule = DefaultFormsPurgeSchedule
	}
	if cfg.Forms.RequestTimeout == 0 {
		cfg.Forms.RequestTimeout = DefaultFormsRequestTimeout
	}

	if cfg.Resources.Backend == "" {
		cfg.Resources.Backend = DefaultResourcesBackend
	}
	if cfg.Resources.Backend == "sqlite" && cfg.Resources.SQLitePath == "" {
		cfg.Resources.SQLitePath = DefaultResourcesSQLitePath
	}
	if cfg.Resources.Timeout == 0 {
		cfg.Resources.Timeout = DefaultResourcesTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
