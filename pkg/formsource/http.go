package formsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxDocumentSize caps form documents read over HTTP.
const MaxDocumentSize = 8 << 20

func loadHTTP(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, error) {
	if client == nil {
		return nil, ErrHTTPDisabled
	}
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidReference)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("formsource: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("formsource: get %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("formsource: get %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("formsource: read %s: %w", url, err)
	}
	if len(body) > MaxDocumentSize {
		return nil, fmt.Errorf("formsource: get %s: document exceeds %d bytes", url, MaxDocumentSize)
	}
	return body, nil
}
