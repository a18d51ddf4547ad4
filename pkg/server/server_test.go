package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	formvalidator "github.com/goliatone/go-formio-validator"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const requiredName = `{"components": [
	{"type": "textfield", "key": "name", "label": "Name", "input": true, "validate": {"required": true}}
]}`

func newTestServer(t *testing.T, options ...Option) *Server {
	t.Helper()
	svc, err := formvalidator.New()
	require.NoError(t, err)
	return New(svc, options...)
}

func post(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestValidateInlineForm(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := post(t, h, "/api/v1/validate", ValidateRequest{
		Form: json.RawMessage(requiredName),
		Data: map[string]any{},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result formvalidator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Name is required", result.Errors[0].Message)

	rec = post(t, h, "/api/v1/validate", ValidateRequest{
		Form: json.RawMessage(requiredName),
		Data: map[string]any{"name": "Ada"},
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"name": "Ada"}, result.Data)
}

func TestValidateRuntimeFailure(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := post(t, h, "/api/v1/validate", ValidateRequest{
		Form:    json.RawMessage(`{"components": [{"type": "textfield", "key": "spin", "calculateValue": "while (true) {}"}]}`),
		Data:    map[string]any{},
		Options: Options{VMTimeout: 50},
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var result formvalidator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Error)
	assert.Equal(t, "TimeoutError", result.Error.Type)
}

func TestValidateBadRequests(t *testing.T) {
	h := newTestServer(t).Handler()

	cases := map[string]any{
		"no form":  ValidateRequest{Data: map[string]any{}},
		"both":     ValidateRequest{Form: json.RawMessage(requiredName), FormURL: "https://example.com/form"},
		"bad url":  ValidateRequest{FormURL: "ftp://example.com/form"},
		"not json": "just a string",
	}
	for name, body := range cases {
		rec := post(t, h, "/api/v1/validate", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)

		var apiErr APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), name)
		assert.Equal(t, CodeInvalidRequest, apiErr.Code, name)
	}
}

type recordingValidator struct {
	ref  formsource.Reference
	opts formvalidator.ValidationOptions
}

func (r *recordingValidator) ValidateSubmission(_ context.Context, ref formsource.Reference, _ map[string]any, opts formvalidator.ValidationOptions) formvalidator.Result {
	r.ref = ref
	r.opts = opts
	return formvalidator.Result{Success: true, Timestamp: time.Unix(0, 0).UTC()}
}

func TestNamedFormsAndTokens(t *testing.T) {
	rv := &recordingValidator{}
	h := New(rv, WithResolver(func(name string) (formsource.Reference, bool) {
		if name != "contact" {
			return nil, false
		}
		return formsource.FromFS("forms/contact.json"), true
	})).Handler()

	rec := post(t, h, "/api/v1/forms/contact/validate", SubmissionRequest{
		Data:    map[string]any{"name": "Ada"},
		Options: Options{VMTimeout: 250, Tokens: map[string]string{"other": "x"}},
	}, map[string]string{processing.TokenHeader: "jwt"})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, rv.ref)
	assert.Equal(t, "forms/contact.json", rv.ref.Location())
	assert.Equal(t, 250*time.Millisecond, rv.opts.VMTimeout)
	assert.Equal(t, map[string]string{"other": "x", processing.TokenHeader: "jwt"}, rv.opts.Tokens)

	rec = post(t, h, "/api/v1/forms/unknown/validate", SubmissionRequest{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormURLsNeedAnAllowedPrefix(t *testing.T) {
	body := func(formURL string) ValidateRequest {
		return ValidateRequest{FormURL: formURL, Data: map[string]any{}}
	}

	rv := &recordingValidator{}
	h := New(rv).Handler()
	rec := post(t, h, "/api/v1/validate", body("http://169.254.169.254/latest/meta-data"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, CodeFormURLDenied, apiErr.Code)
	assert.Nil(t, rv.ref)

	h = New(rv, WithFormURLPrefixes("https://forms.example.com/project", "not a url")).Handler()
	cases := map[string]int{
		"https://forms.example.com/project/contact":         http.StatusOK,
		"https://FORMS.example.com/project/contact":         http.StatusOK,
		"https://forms.example.com/project":                 http.StatusOK,
		"http://forms.example.com/project/contact":          http.StatusForbidden,
		"https://forms.example.com/projectx/contact":        http.StatusForbidden,
		"https://forms.example.com.evil.test/project/form":  http.StatusForbidden,
		"https://user:pw@forms.example.com/project/contact": http.StatusForbidden,
		"http://localhost:8080/admin":                       http.StatusForbidden,
	}
	for formURL, want := range cases {
		rv.ref = nil
		rec := post(t, h, "/api/v1/validate", body(formURL), nil)
		assert.Equal(t, want, rec.Code, formURL)
		if want == http.StatusOK {
			require.NotNil(t, rv.ref, formURL)
		} else {
			assert.Nil(t, rv.ref, formURL)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := newTestServer(t, WithMetricsHandler(metrics)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())
}
