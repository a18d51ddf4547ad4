package resources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/resources"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
	"github.com/goliatone/go-formio-validator/pkg/validator"
)

var usersForm = &form.Form{ID: "users", Name: "users"}

var customerResource = &form.Form{
	Name: "customer",
	Components: []form.Component{
		{Type: "textfield", Key: "email", Input: true},
	},
}

func seedStores(t *testing.T) map[string]resources.Store {
	t.Helper()
	ctx := context.Background()

	memory := resources.NewMemory()
	memory.PutResource("customer", customerResource)

	sqlite, err := resources.OpenSQLite(resources.SQLiteConfig{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	if err := sqlite.PutResource(ctx, "customer", customerResource); err != nil {
		t.Fatalf("PutResource: %v", err)
	}

	rows := []map[string]any{
		{"username": "Ada", "age": 36.0, "grid": []any{map[string]any{"email": "ada@example.com"}}},
		{"username": "grace", "active": true},
	}
	for _, row := range rows {
		memory.PutSubmission("users", row)
		if _, err := sqlite.PutSubmission(ctx, "users", row); err != nil {
			t.Fatalf("PutSubmission: %v", err)
		}
	}
	return map[string]resources.Store{"memory": memory, "sqlite": sqlite}
}

func TestStoresUniqueness(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		path   string
		value  any
		unique bool
	}{
		{name: "string match ignores case", path: "username", value: "ada", unique: false},
		{name: "string miss", path: "username", value: "alan", unique: true},
		{name: "number match", path: "age", value: 36.0, unique: false},
		{name: "bool match", path: "active", value: true, unique: false},
		{name: "array element match", path: "grid[3].email", value: "ADA@example.com", unique: false},
		{name: "array element miss", path: "grid[0].email", value: "grace@example.com", unique: true},
	}

	for storeName, store := range seedStores(t) {
		store := store
		t.Run(storeName, func(t *testing.T) {
			t.Parallel()
			for _, tc := range cases {
				got, err := store.IsUnique(context.Background(), processing.UniqueRequest{
					Form:  usersForm,
					Path:  tc.path,
					Value: tc.value,
				})
				if err != nil {
					t.Fatalf("%s: IsUnique: %v", tc.name, err)
				}
				if got != tc.unique {
					t.Fatalf("%s: unique = %v, want %v", tc.name, got, tc.unique)
				}
			}
		})
	}
}

func TestStoresResourcesAndFetch(t *testing.T) {
	t.Parallel()

	for storeName, store := range seedStores(t) {
		store := store
		t.Run(storeName, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			got, ok, err := store.LoadResource(ctx, "customer")
			if err != nil || !ok {
				t.Fatalf("LoadResource = %v, %v", ok, err)
			}
			if diff := cmp.Diff("email", got.Components[0].Key); diff != "" {
				t.Fatalf("resource mismatch (-want +got):\n%s", diff)
			}

			if _, ok, err := store.LoadResource(ctx, "missing"); ok || err != nil {
				t.Fatalf("missing resource = %v, %v", ok, err)
			}

			rows, err := store.Fetch(ctx, sandbox.FetchRequest{DataSrc: "resource", Resource: "users"})
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if n := len(rows.([]any)); n != 2 {
				t.Fatalf("expected 2 rows, got %d", n)
			}

			if _, err := store.Fetch(ctx, sandbox.FetchRequest{DataSrc: "url"}); !errors.Is(err, resources.ErrUnsupportedSource) {
				t.Fatalf("expected ErrUnsupportedSource, got %v", err)
			}
		})
	}
}

func TestUniqueQuery(t *testing.T) {
	t.Parallel()

	clause, args, err := resources.UniqueQuery("grid[0].email", "a@b.c")
	if err != nil {
		t.Fatalf("UniqueQuery: %v", err)
	}
	wantClause := "EXISTS (SELECT 1 FROM json_each(s.data, ?) AS e0 WHERE lower(json_extract(e0.value, ?)) = lower(?))"
	if diff := cmp.Diff(wantClause, clause); diff != "" {
		t.Fatalf("clause mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"$.grid", "$.email", "a@b.c"}, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	clause, args, err = resources.UniqueQuery(`tags[1]`, nil)
	if err != nil {
		t.Fatalf("UniqueQuery: %v", err)
	}
	if diff := cmp.Diff("EXISTS (SELECT 1 FROM json_each(s.data, ?) AS e0 WHERE e0.value IS NULL)", clause); diff != "" {
		t.Fatalf("clause mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"$.tags"}, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := resources.UniqueQuery("", "x"); !errors.Is(err, resources.ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestHTTPStore(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/form/customer", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(processing.TokenHeader) != "api-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"name":"customer","components":[{"type":"textfield","key":"email","input":true}]}`))
	})
	mux.HandleFunc("/form/users/exists", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("data.username") == "ada" {
			_, _ = w.Write([]byte(`{"_id":"1"}`))
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/form/users/submission", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"data":{"username":"ada"}}]`))
	})
	mux.HandleFunc("/lookup", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"method":"` + r.Method + `","token":"` + r.Header.Get(processing.TokenHeader) + `","x":"` + r.Header.Get("X-Extra") + `"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store, err := resources.NewHTTP(server.URL, resources.WithClient(server.Client()), resources.WithToken("api-token"))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	ctx := context.Background()

	got, ok, err := store.LoadResource(ctx, "customer")
	if err != nil || !ok || got.Name != "customer" {
		t.Fatalf("LoadResource = %+v, %v, %v", got, ok, err)
	}
	if _, ok, err := store.LoadResource(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing resource = %v, %v", ok, err)
	}

	for value, want := range map[string]bool{"ada": false, "alan": true} {
		unique, err := store.IsUnique(ctx, processing.UniqueRequest{Form: usersForm, Path: "username", Value: value})
		if err != nil {
			t.Fatalf("IsUnique(%s): %v", value, err)
		}
		if unique != want {
			t.Fatalf("IsUnique(%s) = %v, want %v", value, unique, want)
		}
	}

	rows, err := store.Fetch(ctx, sandbox.FetchRequest{DataSrc: "resource", Resource: "users"})
	if err != nil {
		t.Fatalf("Fetch resource: %v", err)
	}
	if diff := cmp.Diff([]any{map[string]any{"data": map[string]any{"username": "ada"}}}, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	lookup, err := store.Fetch(ctx, sandbox.FetchRequest{
		DataSrc: "url",
		URL:     "/lookup",
		Method:  http.MethodPost,
		Headers: map[string]string{"X-Extra": "1"},
		Token:   "user-jwt",
	})
	if err != nil {
		t.Fatalf("Fetch url: %v", err)
	}
	want := map[string]any{"method": "POST", "token": "user-jwt", "x": "1"}
	if diff := cmp.Diff(want, lookup); diff != "" {
		t.Fatalf("lookup mismatch (-want +got):\n%s", diff)
	}

	if _, err := resources.NewHTTP("not a url"); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestSQLiteBacksValidatorUniqueness(t *testing.T) {
	t.Parallel()

	store, err := resources.OpenSQLite(resources.SQLiteConfig{Path: t.TempDir() + "/resources.db"})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.PutSubmission(context.Background(), "signup", map[string]any{"username": "ada"}); err != nil {
		t.Fatalf("PutSubmission: %v", err)
	}

	f, err := form.Parse([]byte(`{"name":"signup","components":[
		{"type":"textfield","key":"username","label":"Username","unique":true,"input":true}
	]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, err := validator.New(f, nil, validator.WithUniqueChecker(store), validator.WithResources(store))
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}

	_, _, err = v.Validate(context.Background(), &validator.Submission{Data: map[string]any{"username": "ADA"}})
	var verr *findings.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if diff := cmp.Diff("Username must be unique", verr.Details[0].Message); diff != "" {
		t.Fatalf("message mismatch (-want +got):\n%s", diff)
	}

	data, _, err := v.Validate(context.Background(), &validator.Submission{Data: map[string]any{"username": "grace"}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"username": "grace"}, data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}
