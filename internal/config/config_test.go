package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formvalidate.yaml")
	raw := `
server:
  listen_address: ":9000"
validator:
  vm_timeout: 2s
  dependencies:
    - name: helpers
      path: ./helpers.js
  project_config:
    region: eu
resources:
  backend: sqlite
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("FORMVALIDATE_SERVER_LISTEN_ADDRESS", ":9100")
	t.Setenv("FORMVALIDATE_FORMS_WATCH", "true")
	t.Setenv("FORMVALIDATE_METRICS_ENABLED", "yes-please")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddress != ":9100" {
		t.Fatalf("env override not applied: %q", cfg.Server.ListenAddress)
	}
	if cfg.Validator.VMTimeout != 2*time.Second {
		t.Fatalf("vm timeout = %v", cfg.Validator.VMTimeout)
	}
	if !cfg.Forms.Watch {
		t.Fatalf("forms.watch override not applied")
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("unparseable bool must be ignored")
	}
	if diff := cmp.Diff(DefaultResourcesSQLitePath, cfg.Resources.SQLitePath); diff != "" {
		t.Fatalf("sqlite path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"region": "eu"}, cfg.Validator.ProjectConfig); diff != "" {
		t.Fatalf("project config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]DependencyConfig{{Name: "helpers", Path: "./helpers.js"}}, cfg.Validator.Dependencies); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Forms.PurgeSchedule = "every now and then"
	cfg.Forms.URLPrefixes = []string{"https://forms.example.com/", "/etc/passwd"}
	cfg.Resources.Backend = "http"
	cfg.Logging.Format = "xml"
	cfg.Validator.Dependencies = []DependencyConfig{{Name: "a", Path: "a.js"}, {Name: "a"}}

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var fields []string
	for _, fe := range verr.Errors {
		fields = append(fields, fe.Field)
	}
	want := []string{
		"validator.dependencies[1].name",
		"validator.dependencies[1].path",
		"forms.purge_schedule",
		"forms.url_prefixes",
		"forms.url_prefixes[1]",
		"resources.base_url",
		"logging.format",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvOverridesLookup(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"FORMVALIDATE_RESOURCES_BACKEND":    "http",
		"FORMVALIDATE_RESOURCES_BASE_URL":   "https://forms.example.com",
		"FORMVALIDATE_VALIDATOR_VM_TIMEOUT": "750ms",
	}
	cfg := Default()
	applyEnvOverrides(cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if cfg.Resources.Backend != "http" || cfg.Resources.BaseURL != "https://forms.example.com" {
		t.Fatalf("resources overrides not applied: %+v", cfg.Resources)
	}
	if cfg.Validator.VMTimeout != 750*time.Millisecond {
		t.Fatalf("vm timeout = %v", cfg.Validator.VMTimeout)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
