package form_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

func loadNested(t *testing.T) *form.Form {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "nested.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	parsed, err := form.Parse(raw)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return parsed
}

func TestParseDecodesTypedFields(t *testing.T) {
	t.Parallel()

	parsed := loadNested(t)
	if parsed.Title != "Order" || parsed.Config["currency"] != "EUR" {
		t.Fatalf("unexpected form header: %+v", parsed)
	}

	name := form.FindByKey(parsed.Components, "name")
	if name == nil {
		t.Fatalf("name component not found")
	}
	if !name.IsRequired() {
		t.Fatalf("expected name to be required")
	}
	if name.Validate.MinLength.Valid {
		t.Fatalf("empty minLength should be unset")
	}
	if got := name.Validate.MaxLength; got != form.Num(20) {
		t.Fatalf("maxLength = %+v, want 20", got)
	}

	sku := form.FindByKey(parsed.Components, "sku")
	if sku == nil || !sku.CustomConditional.Empty() {
		t.Fatalf("object customConditional should decode as empty expression")
	}
}

func TestWalkSchemaPaths(t *testing.T) {
	t.Parallel()

	parsed := loadNested(t)
	var paths []string
	form.Walk(parsed.Components, func(c *form.Component, path string, _ *form.Component) bool {
		if c.IsInput() {
			paths = append(paths, path)
		}
		return true
	})

	want := []string{"name", "email", "age", "customer", "customer.city", "items", "items.sku", "items.price"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("walk paths mismatch (-want +got):\n%s", diff)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		component form.Component
		want      form.Kind
	}{
		{form.Component{Type: "panel", Components: []form.Component{{Type: "textfield", Key: "a"}}}, form.KindLayout},
		{form.Component{Type: "container", Key: "c"}, form.KindContainer},
		{form.Component{Type: "datatable", Key: "d"}, form.KindArray},
		{form.Component{Type: "htmlelement", Key: "h"}, form.KindContent},
		{form.Component{Type: "textfield", Key: "t"}, form.KindLeaf},
		{form.Component{Components: []form.Component{{Type: "textfield", Key: "a"}}}, form.KindLayout},
	}
	for _, tc := range cases {
		if got := form.KindOf(&tc.component); got != tc.want {
			t.Fatalf("KindOf(%s) = %v, want %v", tc.component.Type, got, tc.want)
		}
	}
}

func TestResolvedLookupIgnoresIndexes(t *testing.T) {
	t.Parallel()

	parsed := loadNested(t)
	resolved := form.NewResolved(parsed.Components)

	c, ok := resolved.Lookup("items[3].price")
	if !ok || c.Key != "price" {
		t.Fatalf("expected price component, got %v (%v)", c, ok)
	}

	c.Label = "changed"
	if original := form.FindByKey(parsed.Components, "price"); original.Label != "Price" {
		t.Fatalf("resolved view mutated the source form")
	}
}

func TestComponentRoundTripKeepsUnknownAttributes(t *testing.T) {
	t.Parallel()

	parsed := loadNested(t)
	city := form.FindByKey(parsed.Components, "city")
	if city == nil {
		t.Fatalf("city not found")
	}
	payload, err := json.Marshal(city)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["customClass"] != "wide" || decoded["key"] != "city" {
		t.Fatalf("unknown attributes lost: %v", decoded)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	doc := []byte(`
title: Contact
components:
  - type: textfield
    key: name
    input: true
    validate:
      required: true
      maxLength: 10
`)
	parsed, err := form.ParseYAML(doc)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	name := form.FindByKey(parsed.Components, "name")
	if name == nil || !name.IsRequired() || name.Validate.MaxLength != form.Num(10) {
		t.Fatalf("unexpected yaml component: %+v", name)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := form.Parse([]byte("  ")); err != form.ErrEmptyDocument {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}
