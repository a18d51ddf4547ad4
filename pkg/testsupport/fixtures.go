// Package testsupport holds fixture and golden helpers shared by the
// validation tests.
package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
)

// LoadForm reads a form fixture (JSON or YAML by extension). Testing helpers
// fail the test to keep contract tests concise.
func LoadForm(t *testing.T, path string) *form.Form {
	t.Helper()

	f, err := LoadFormFromPath(path)
	if err != nil {
		t.Fatalf("load form: %v", err)
	}
	return f
}

// LoadFormFromPath returns the form without requiring testing.T, allowing
// callers to wire fixtures in setup functions.
func LoadFormFromPath(path string) (*form.Form, error) {
	if path == "" {
		return nil, errors.New("testsupport: form path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testsupport: read form: %w", err)
	}
	doc, err := formsource.NewDocument(formsource.FromFile(path), data)
	if err != nil {
		return nil, fmt.Errorf("testsupport: new document: %w", err)
	}
	f, err := doc.Form()
	if err != nil {
		return nil, fmt.Errorf("testsupport: parse form: %w", err)
	}
	return f, nil
}

// Submission is a submission fixture: the data plus any envelope metadata.
type Submission struct {
	Data map[string]any
	Meta map[string]any
}

// LoadSubmission reads a JSON submission fixture. A document with a "data"
// object is an envelope; anything else is the data itself.
func LoadSubmission(t *testing.T, path string) Submission {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read submission: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	data, ok := doc["data"].(map[string]any)
	if !ok {
		return Submission{Data: doc}
	}
	delete(doc, "data")
	return Submission{Data: data, Meta: doc}
}

// Finding is the stable part of a findings.Detail: context values carry
// rendering state that would make goldens brittle.
type Finding struct {
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

// Findings strips details down to message and path.
func Findings(details []findings.Detail) []Finding {
	if len(details) == 0 {
		return nil
	}
	out := make([]Finding, 0, len(details))
	for _, d := range details {
		out = append(out, Finding{Message: d.Message, Path: d.Path})
	}
	return out
}

// Normalize round trips value through JSON so it compares equal to a decoded
// golden file.
func Normalize(t *testing.T, value any) any {
	t.Helper()

	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal value: %v", err)
	}
	var out any
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	return out
}

// WriteGolden writes arbitrary data to a golden file when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, value any) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") == "" {
		return
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
}

// MustReadGolden reads a JSON golden file and decodes it.
func MustReadGolden(t *testing.T, path string) any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal golden: %v", err)
	}
	return out
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}
