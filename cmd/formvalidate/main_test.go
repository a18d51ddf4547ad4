package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/formsource"
)

const contactForm = `{"name":"contact","components":[
	{"type":"textfield","key":"name","label":"Name","input":true,"validate":{"required":true}},
	{"type":"number","key":"age","label":"Age","input":true}
]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadSubmission(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name     string
		path     string
		stdin    string
		wantData map[string]any
		wantMeta map[string]any
	}{
		{
			name:     "bare data from stdin",
			stdin:    `{"name":"Ada"}`,
			wantData: map[string]any{"name": "Ada"},
		},
		{
			name:     "envelope",
			path:     writeFile(t, dir, "envelope.json", `{"data":{"name":"Ada"},"owner":"u1"}`),
			wantData: map[string]any{"name": "Ada"},
			wantMeta: map[string]any{"owner": "u1"},
		},
		{
			name:     "yaml numbers become float64",
			path:     writeFile(t, dir, "submission.yaml", "data:\n  name: Ada\n  age: 36\n"),
			wantData: map[string]any{"name": "Ada", "age": 36.0},
			wantMeta: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, meta, err := readSubmission(strings.NewReader(tt.stdin), tt.path)
			if err != nil {
				t.Fatalf("readSubmission: %v", err)
			}
			if diff := cmp.Diff(tt.wantData, data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantMeta, meta); diff != "" {
				t.Errorf("meta mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadSubmissionRejectsNonObjects(t *testing.T) {
	t.Parallel()

	if _, _, err := readSubmission(strings.NewReader(`[1,2]`), ""); err == nil {
		t.Fatal("expected error for array submission")
	}
	if _, _, err := readSubmission(strings.NewReader(`null`), "-"); err == nil {
		t.Fatal("expected error for null submission")
	}
}

func TestResolveForm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "contact.yaml", "name: contact\n")
	writeFile(t, dir, "survey.json", "{}")

	ref, ok := resolveForm(dir, "contact")
	if !ok {
		t.Fatal("contact not resolved")
	}
	if diff := cmp.Diff(filepath.Join(dir, "contact.yaml"), ref.Location()); diff != "" {
		t.Errorf("location mismatch (-want +got):\n%s", diff)
	}
	if ref.Kind() != formsource.KindFile {
		t.Errorf("kind = %s, want file", ref.Kind())
	}
	if ref, ok := resolveForm(dir, "survey"); !ok || ref.Location() != filepath.Join(dir, "survey.json") {
		t.Errorf("survey resolved to %v, %v", ref, ok)
	}

	for _, name := range []string{"", "missing", "../contact", "..", "sub/contact"} {
		if _, ok := resolveForm(dir, name); ok {
			t.Errorf("resolveForm(%q) resolved", name)
		}
	}
}

// TestValidateCommand drives the validate subcommand end to end. Not parallel:
// command flags are package state.
func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	formPath := writeFile(t, dir, "contact.json", contactForm)

	run := func(t *testing.T, data string) (map[string]any, error) {
		t.Helper()
		dataPath := writeFile(t, dir, "submission.json", data)
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs([]string{"validate", formPath, "--data", dataPath, "--compact"})
		err := rootCmd.Execute()

		var result map[string]any
		if decodeErr := json.Unmarshal(out.Bytes(), &result); decodeErr != nil {
			t.Fatalf("decode output %q: %v", out.String(), decodeErr)
		}
		return result, err
	}

	t.Run("invalid", func(t *testing.T) {
		result, err := run(t, `{"data":{"age":3}}`)
		if !errors.Is(err, errValidationFailed) {
			t.Fatalf("err = %v, want errValidationFailed", err)
		}
		if result["success"] != false {
			t.Fatalf("success = %v", result["success"])
		}
		errs, _ := result["errors"].([]any)
		if len(errs) != 1 {
			t.Fatalf("errors = %v", result["errors"])
		}
		detail := errs[0].(map[string]any)
		if diff := cmp.Diff("Name is required", detail["message"]); diff != "" {
			t.Errorf("message mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("valid", func(t *testing.T) {
		result, err := run(t, `{"name":"Ada","age":36}`)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		want := map[string]any{"name": "Ada", "age": 36.0}
		if diff := cmp.Diff(want, result["data"]); diff != "" {
			t.Errorf("data mismatch (-want +got):\n%s", diff)
		}
	})
}
