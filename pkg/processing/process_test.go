package processing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/processing/rules"
)

func mustForm(t *testing.T, raw string) *form.Form {
	t.Helper()
	parsed, err := form.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return parsed
}

func run(t *testing.T, f *form.Form, data map[string]any, db processing.Database) *processing.Context {
	t.Helper()
	pc := &processing.Context{
		Form:   f,
		Data:   data,
		Rules:  rules.Server(),
		Config: processing.Config{Database: db},
	}
	if err := processing.Process(context.Background(), pc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return pc
}

func errorPaths(pc *processing.Context) []string {
	var out []string
	for _, f := range pc.Scope.Errors {
		out = append(out, f.Rule+"@"+f.Path)
	}
	return out
}

const nestedForm = `{
  "components": [
    {"type": "textfield", "key": "name", "label": "Name", "validate": {"required": true}},
    {"type": "panel", "key": "p", "components": [
      {"type": "number", "key": "age", "validate": {"min": 18}}
    ]},
    {"type": "container", "key": "customer", "components": [
      {"type": "textfield", "key": "city", "validate": {"required": true}}
    ]},
    {"type": "datagrid", "key": "items", "components": [
      {"type": "textfield", "key": "sku", "validate": {"required": true}},
      {"type": "number", "key": "qty", "validate": {"max": 5}}
    ]}
  ]
}`

func TestProcessCollectsFindingsInDocumentOrder(t *testing.T) {
	t.Parallel()

	pc := run(t, mustForm(t, nestedForm), map[string]any{
		"age":   "12",
		"items": []any{map[string]any{"sku": "A", "qty": float64(9)}, map[string]any{"qty": "2"}},
	}, nil)

	want := []string{
		"required@name",
		"min@age",
		"required@customer.city",
		"max@items[0].qty",
		"required@items[1].sku",
	}
	if diff := cmp.Diff(want, errorPaths(pc)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}

	if got := pc.Data["age"]; got != float64(12) {
		t.Fatalf("expected age normalized to number, got %#v", got)
	}
	rows := pc.Data["items"].([]any)
	if got := rows[1].(map[string]any)["qty"]; got != float64(2) {
		t.Fatalf("expected row qty normalized, got %#v", got)
	}
}

func TestRequiredScenario(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[{"type":"textfield","key":"name","validate":{"required":true}}]}`)

	pc := run(t, f, map[string]any{}, nil)
	if diff := cmp.Diff([]string{"required@name"}, errorPaths(pc)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}

	pc = run(t, f, map[string]any{"name": "Ada"}, nil)
	if len(pc.Scope.Errors) != 0 {
		t.Fatalf("unexpected findings: %v", errorPaths(pc))
	}
	if diff := cmp.Diff(map[string]any{"name": "Ada"}, pc.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestConditionalHidesAndClears(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"checkbox","key":"gift"},
	  {"type":"textfield","key":"message","validate":{"required":true},
	   "conditional":{"show":true,"when":"gift","eq":"true"}},
	  {"type":"textfield","key":"keep","clearOnHide":false,
	   "conditional":{"show":true,"when":"gift","eq":"true"}},
	  {"type":"panel","key":"extra","conditional":{"rule":"data.gift == true"},"components":[
	    {"type":"textfield","key":"wrap","validate":{"required":true}}
	  ]}
	]}`)

	pc := run(t, f, map[string]any{"gift": "false", "message": "hi", "keep": "x", "wrap": "paper"}, nil)

	if len(pc.Scope.Errors) != 0 {
		t.Fatalf("hidden components must not be validated: %v", errorPaths(pc))
	}
	want := map[string]any{"gift": false, "keep": "x"}
	if diff := cmp.Diff(want, pc.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	for _, path := range []string{"message", "keep", "wrap"} {
		if !pc.Scope.IsHidden(path) {
			t.Fatalf("expected %s recorded as hidden", path)
		}
	}

	pc = run(t, f, map[string]any{"gift": true}, nil)
	if diff := cmp.Diff([]string{"required@message", "required@wrap"}, errorPaths(pc)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestConditionsListInRows(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"datagrid","key":"rows","components":[
	    {"type":"select","key":"kind"},
	    {"type":"textfield","key":"note","validate":{"required":true},
	     "conditional":{"show":true,"conjunction":"any","conditions":[
	       {"component":"rows.kind","operator":"isEqual","value":"other"},
	       {"component":"rows.kind","operator":"isEmpty"}
	     ]}}
	  ]}
	]}`)

	pc := run(t, f, map[string]any{"rows": []any{
		map[string]any{"kind": "other"},
		map[string]any{"kind": "fixed"},
	}}, nil)
	if diff := cmp.Diff([]string{"required@rows[0].note"}, errorPaths(pc)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultsAndNormalization(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"textfield","key":"country","defaultValue":"NL"},
	  {"type":"textfield","key":"blank","defaultValue":""},
	  {"type":"select","key":"tags","multiple":true},
	  {"type":"checkbox","key":"agree"},
	  {"type":"selectboxes","key":"boxes"},
	  {"type":"currency","key":"price"}
	]}`)

	pc := run(t, f, map[string]any{
		"tags":  "a",
		"agree": "on",
		"boxes": map[string]any{"x": "true", "y": false},
		"price": float64(3),
	}, nil)

	want := map[string]any{
		"country": "NL",
		"tags":    []any{"a"},
		"agree":   true,
		"boxes":   map[string]any{"x": true, "y": false},
		"price":   float64(3),
	}
	if diff := cmp.Diff(want, pc.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

type resourceDB struct {
	mu        sync.Mutex
	resources map[string]string
	delay     map[string]time.Duration
	calls     []string
	t         *testing.T
}

func (d *resourceDB) IsUnique(context.Context, processing.UniqueRequest) (bool, error) {
	return true, nil
}

func (d *resourceDB) DereferenceDataTableComponent(ctx context.Context, c *form.Component) ([]form.Component, error) {
	id := c.Fetch.Resource
	d.mu.Lock()
	d.calls = append(d.calls, id)
	d.mu.Unlock()
	if wait := d.delay[id]; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	raw, ok := d.resources[id]
	if !ok {
		return nil, &processing.ResourceNotFoundError{Resource: id}
	}
	return mustForm(d.t, raw).Components, nil
}

func TestDereferenceSplicesInDocumentOrder(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"datatable","key":"first","fetch":{"dataSrc":"resource","resource":"slow"},
	   "components":[{"type":"textfield","key":"own"}]},
	  {"type":"datatable","key":"second","fetch":{"dataSrc":"resource","resource":"fast"}}
	]}`)
	db := &resourceDB{
		t: t,
		resources: map[string]string{
			"slow": `[{"type":"textfield","key":"a"},{"type":"textfield","key":"b"}]`,
			"fast": `[{"type":"textfield","key":"c","validate":{"required":true}}]`,
		},
		delay: map[string]time.Duration{"slow": 20 * time.Millisecond},
	}

	pc := run(t, f, map[string]any{
		"first":  []any{map[string]any{"own": "x"}},
		"second": []any{map[string]any{}},
	}, db)

	want := []string{"first", "first.own", "first.a", "first.b", "second", "second.c"}
	if diff := cmp.Diff(want, pc.Components.Paths()); diff != "" {
		t.Fatalf("resolved paths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"required@second[0].c"}, errorPaths(pc)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}
	if len(f.Components[0].Components) != 1 {
		t.Fatalf("source form was mutated")
	}
}

func TestDereferenceMissingResource(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"datatable","key":"table","fetch":{"dataSrc":"resource","resource":"r1"}}
	]}`)
	pc := &processing.Context{Form: f, Data: map[string]any{}}
	err := processing.Process(context.Background(), pc)

	var notFound *processing.ResourceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ResourceNotFoundError, got %v", err)
	}
	if err.Error() != "Resource at r1 not found for dereferencing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDereferenceDetectsCycles(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"datatable","key":"table","fetch":{"dataSrc":"resource","resource":"loop"}}
	]}`)
	db := &resourceDB{t: t, resources: map[string]string{
		"loop": `[{"type":"datatable","key":"inner","fetch":{"dataSrc":"resource","resource":"loop"}}]`,
	}}

	err := processing.Process(context.Background(), &processing.Context{
		Form:   f,
		Data:   map[string]any{},
		Config: processing.Config{Database: db},
	})
	var derefErr *processing.DereferenceError
	if !errors.As(err, &derefErr) {
		t.Fatalf("expected DereferenceError, got %v", err)
	}
	if diff := cmp.Diff([]string{"loop", "loop"}, derefErr.Chain); diff != "" {
		t.Fatalf("chain mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := processing.Process(ctx, &processing.Context{
		Form: mustForm(t, nestedForm),
		Data: map[string]any{},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScopeCloneIsIndependent(t *testing.T) {
	t.Parallel()

	scope := processing.NewScope()
	scope.MarkFetched("lookup", processing.Provenance{Source: "url", URL: "https://example.test"})
	clone := scope.Clone()
	clone.MarkFetched("other", processing.Provenance{Source: "resource"})
	clone.Extras["k"] = "v"

	if len(scope.Fetched) != 1 || len(scope.Extras) != 0 {
		t.Fatalf("clone shares state with source: %+v", scope)
	}
}

func TestSplicedFieldsDriveLaterConditionals(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"datatable","key":"orders","fetch":{"dataSrc":"resource","resource":"order"},
	   "components":[{"type":"textfield","key":"own"}]},
	  {"type":"datatable","key":"later","fetch":{"dataSrc":"resource","resource":"line"}},
	  {"type":"textfield","key":"wrap","validate":{"required":true},
	   "conditional":{"show":true,"when":"orders[0].kind","eq":"gift"}}
	]}`)
	resources := map[string]string{
		"order": `[
		  {"type":"textfield","key":"kind","validate":{"required":true}},
		  {"type":"textfield","key":"giftMsg","validate":{"required":true},
		   "conditional":{"show":true,"when":"kind","eq":"gift"}}
		]`,
		"line": `[{"type":"textfield","key":"c","validate":{"required":true}}]`,
	}

	// The result must not depend on which resource resolves first.
	for _, slow := range []string{"order", "line"} {
		db := &resourceDB{t: t, resources: resources, delay: map[string]time.Duration{slow: 20 * time.Millisecond}}

		pc := run(t, f, map[string]any{
			"orders": []any{
				map[string]any{"own": "x", "kind": "gift"},
				map[string]any{"own": "y", "kind": "plain", "giftMsg": "drop me"},
			},
			"later": []any{map[string]any{}},
		}, db)

		want := []string{"required@orders[0].giftMsg", "required@later[0].c", "required@wrap"}
		if diff := cmp.Diff(want, errorPaths(pc)); diff != "" {
			t.Fatalf("slow %s: findings mismatch (-want +got):\n%s", slow, diff)
		}
		hidden := map[string]bool{}
		for _, path := range []string{"orders[0].giftMsg", "orders[1].giftMsg", "wrap"} {
			hidden[path] = pc.Scope.IsHidden(path)
		}
		if diff := cmp.Diff(map[string]bool{"orders[0].giftMsg": false, "orders[1].giftMsg": true, "wrap": false}, hidden); diff != "" {
			t.Fatalf("slow %s: hidden mismatch (-want +got):\n%s", slow, diff)
		}
		wantOrders := []any{
			map[string]any{"own": "x", "kind": "gift"},
			map[string]any{"own": "y", "kind": "plain"},
		}
		if diff := cmp.Diff(wantOrders, pc.Data["orders"]); diff != "" {
			t.Fatalf("slow %s: orders mismatch (-want +got):\n%s", slow, diff)
		}
	}

	db := &resourceDB{t: t, resources: resources}
	pc := run(t, f, map[string]any{"orders": []any{map[string]any{"kind": "plain"}}}, db)
	if len(pc.Scope.Errors) != 0 {
		t.Fatalf("unexpected findings: %v", errorPaths(pc))
	}
	if !pc.Scope.IsHidden("wrap") || !pc.Scope.IsHidden("orders[0].giftMsg") {
		t.Fatalf("expected wrap and the gift message hidden, got %+v", pc.Scope.Conditionals)
	}
}

func TestSplicedFieldsFollowEarlierValues(t *testing.T) {
	t.Parallel()

	f := mustForm(t, `{"components":[
	  {"type":"textfield","key":"mode"},
	  {"type":"datatable","key":"rows","fetch":{"dataSrc":"resource","resource":"detail"},
	   "components":[{"type":"checkbox","key":"enabled"}]},
	  {"type":"datatable","key":"extra","fetch":{"dataSrc":"resource","resource":"note"}}
	]}`)
	resources := map[string]string{
		"detail": `[
		  {"type":"textfield","key":"detail","validate":{"required":true},
		   "conditional":{"show":true,"when":"mode","eq":"full"}},
		  {"type":"textfield","key":"reason","validate":{"required":true},
		   "conditional":{"rule":"row.enabled == true"}}
		]`,
		"note": `[{"type":"textfield","key":"note","validate":{"required":true}}]`,
	}
	rows := func() []any {
		return []any{
			map[string]any{"enabled": true},
			map[string]any{"enabled": false, "reason": "x"},
		}
	}

	for _, slow := range []string{"detail", "note"} {
		db := &resourceDB{t: t, resources: resources, delay: map[string]time.Duration{slow: 20 * time.Millisecond}}

		pc := run(t, f, map[string]any{"mode": "full", "rows": rows(), "extra": []any{map[string]any{}}}, db)
		want := []string{
			"required@rows[0].detail",
			"required@rows[0].reason",
			"required@rows[1].detail",
			"required@extra[0].note",
		}
		if diff := cmp.Diff(want, errorPaths(pc)); diff != "" {
			t.Fatalf("slow %s: findings mismatch (-want +got):\n%s", slow, diff)
		}
		if !pc.Scope.IsHidden("rows[1].reason") || pc.Scope.IsHidden("rows[0].reason") {
			t.Fatalf("slow %s: unexpected visibility %+v", slow, pc.Scope.Conditionals)
		}
	}

	pc := run(t, f, map[string]any{"mode": "short", "rows": rows()}, &resourceDB{t: t, resources: resources})
	if diff := cmp.Diff([]string{"required@rows[0].reason"}, errorPaths(pc)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}
	for _, path := range []string{"rows[0].detail", "rows[1].detail", "rows[1].reason"} {
		if !pc.Scope.IsHidden(path) {
			t.Fatalf("expected %s hidden, got %+v", path, pc.Scope.Conditionals)
		}
	}
}
