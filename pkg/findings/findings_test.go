package findings_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/findings"
)

func TestInterpolateRendersTemplates(t *testing.T) {
	t.Parallel()

	list := []findings.Finding{
		findings.New("name", "name", "required", map[string]any{"label": "<b>Name</b>"}),
		findings.New("qty", "items[1].qty", "min", map[string]any{"label": "Quantity", "min": float64(2)}),
		{Key: "code", Path: "code", Rule: "custom", Message: "Code already taken", Level: findings.LevelError},
		{Key: "note", Path: "note", Rule: "custom", Message: "ignored", Level: findings.LevelWarning},
	}

	details := findings.Interpolate(list, map[string]any{"name": ""})

	var messages []string
	var paths [][]any
	for _, detail := range details {
		messages = append(messages, detail.Message)
		paths = append(paths, detail.Path)
	}

	wantMessages := []string{
		"Name is required",
		"Quantity cannot be less than 2.",
		"Code already taken",
	}
	if diff := cmp.Diff(wantMessages, messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	wantPaths := [][]any{{"name"}, {"items", 1, "qty"}, {"code"}}
	if diff := cmp.Diff(wantPaths, paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplatesSeeDataAndRow(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"limit": 3,
		"items": []any{map[string]any{"sku": "A-1"}},
	}
	f := findings.Finding{
		Key:      "sku",
		Path:     "items[0].sku",
		Rule:     "custom",
		Template: "{{ row.sku }} exceeds {{ data.limit }} for {{ field }}",
		Context:  map[string]any{"label": "SKU"},
	}

	details := findings.Interpolate([]findings.Finding{f}, data)
	if len(details) != 1 {
		t.Fatalf("expected one detail, got %d", len(details))
	}
	if got, want := details[0].Message, "A-1 exceeds 3 for SKU"; got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestRenderStringFallsBackToSource(t *testing.T) {
	t.Parallel()

	interp := findings.NewInterpolator()
	source := "{{ broken "
	if got := interp.RenderString(source, nil); got != source {
		t.Fatalf("RenderString = %q, want raw source", got)
	}
	if got := interp.RenderString("Terms & {{ who }}", map[string]any{"who": "<you>"}); got != "Terms & <you>" {
		t.Fatalf("expected unescaped output, got %q", got)
	}
}

func TestTemplatesNeverLoadFiles(t *testing.T) {
	t.Parallel()

	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("HOST-FILE"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	for _, interp := range []*findings.Interpolator{findings.NewInterpolator(), findings.NewScriptInterpolator()} {
		for _, tag := range []string{"include", "ssi", "import", "extends"} {
			out, err := interp.Render(`{% `+tag+` "`+secret+`" %}`, nil)
			if err == nil {
				t.Fatalf("%s: expected an error, got %q", tag, out)
			}
			if strings.Contains(out, "HOST-FILE") {
				t.Fatalf("%s: file content leaked: %q", tag, out)
			}
		}
	}
}

func TestScriptInterpolatorRefusesUnboundedTemplates(t *testing.T) {
	t.Parallel()

	interp := findings.NewScriptInterpolator()
	for _, source := range []string{
		"{% for i in items %}{{ i }}{% endfor %}",
		"{% macro m() %}{{ m() }}{% endmacro %}",
		"{% lorem 100000 w %}",
		"{{ a|center:1000000 }}",
		"{{ a }}" + strings.Repeat(" ", findings.MaxScriptTemplate),
	} {
		if _, err := interp.Render(source, map[string]any{"a": "x", "items": []any{1}}); err == nil {
			t.Fatalf("expected %.40q to be refused", source)
		}
	}

	got, err := findings.NewInterpolator().Render("{% for i in items %}{{ i }}{% endfor %}", map[string]any{"items": []any{1.0, 2.0}})
	if err != nil {
		t.Fatalf("message templates may loop: %v", err)
	}
	if got != "12" {
		t.Fatalf("Render = %q, want %q", got, "12")
	}
}

func TestSanitizeLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"<script>alert(1)</script>Name": "Name",
		"Terms &amp; Conditions":        "Terms & Conditions",
		"  <em>Email</em> ":             "Email",
		"":                              "",
	}
	for input, want := range cases {
		if got := findings.SanitizeLabel(input); got != want {
			t.Fatalf("SanitizeLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	if err := findings.NewValidationError(nil, nil); err != nil {
		t.Fatalf("expected nil error without findings, got %v", err)
	}

	err := findings.NewValidationError([]findings.Finding{
		findings.New("name", "name", "required", map[string]any{"label": "Name"}),
	}, map[string]any{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if err.Name() != "ValidationError" {
		t.Fatalf("Name() = %q", err.Name())
	}
	if err.Error() != "Name is required" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
