package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// HTTP is a Store backed by a Form.io compatible API:
//
//	GET {base}/form/{id}                       resource definition
//	GET {base}/form/{id}/exists?data.{path}=v  200 when a match exists
//	GET {base}/form/{id}/submission            resource submissions
//
// URL data sources are requested as declared by the component.
type HTTP struct {
	base    string
	client  *http.Client
	token   string
	timeout time.Duration
}

var _ Store = (*HTTP)(nil)

// HTTPOption configures the HTTP store.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client.
func WithClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

// WithToken sends token as x-jwt-token on API requests.
func WithToken(token string) HTTPOption {
	return func(h *HTTP) {
		h.token = token
	}
}

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.timeout = timeout
	}
}

// NewHTTP returns a store talking to base.
func NewHTTP(base string, options ...HTTPOption) (*HTTP, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("resources: invalid base url %q", base)
	}
	h := &HTTP{
		base:   strings.TrimRight(parsed.String(), "/"),
		client: http.DefaultClient,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// LoadResource implements processing.ResourceLoader.
func (h *HTTP) LoadResource(ctx context.Context, id string) (*form.Form, bool, error) {
	status, body, err := h.get(ctx, h.base+"/form/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	if status != http.StatusOK {
		return nil, false, fmt.Errorf("resources: load resource %s: status %d", id, status)
	}
	f, err := form.Parse(body)
	if err != nil {
		return nil, false, fmt.Errorf("resources: decode resource %s: %w", id, err)
	}
	return f, true, nil
}

// IsUnique implements processing.UniqueChecker.
func (h *HTTP) IsUnique(ctx context.Context, req processing.UniqueRequest) (bool, error) {
	key := FormKey(req.Form)
	if key == "" {
		return false, errors.New("resources: unique lookup needs a form id, path or name")
	}
	query := url.Values{}
	query.Set("data."+req.Path, fmt.Sprint(req.Value))
	status, _, err := h.get(ctx, h.base+"/form/"+url.PathEscape(key)+"/exists?"+query.Encode(), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
		return true, nil
	default:
		return false, fmt.Errorf("resources: unique lookup %s: status %d", req.Path, status)
	}
}

// Fetch implements sandbox.Fetcher for resource and url data sources.
func (h *HTTP) Fetch(ctx context.Context, req sandbox.FetchRequest) (any, error) {
	var target string
	headers := req.Headers
	switch req.DataSrc {
	case "resource":
		target = h.base + "/form/" + url.PathEscape(req.Resource) + "/submission"
	case "url":
		target = req.URL
		if strings.HasPrefix(target, "/") {
			target = h.base + target
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, req.DataSrc)
	}
	if req.Token != "" {
		headers = withHeader(headers, processing.TokenHeader, req.Token)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	status, body, err := h.do(ctx, method, target, headers)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("resources: fetch %s: status %d", target, status)
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("resources: decode %s: %w", target, err)
	}
	return out, nil
}

func (h *HTTP) get(ctx context.Context, target string, headers map[string]string) (int, []byte, error) {
	if h.token != "" {
		headers = withHeader(headers, processing.TokenHeader, h.token)
	}
	return h.do(ctx, http.MethodGet, target, headers)
}

func (h *HTTP) do(ctx context.Context, method, target string, headers map[string]string) (int, []byte, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("resources: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("resources: %s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("resources: read %s: %w", target, err)
	}
	return resp.StatusCode, body, nil
}

func withHeader(headers map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out[key] = value
	return out
}
