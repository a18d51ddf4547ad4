package formsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

// FormLoader resolves a reference into a decoded form.
type FormLoader interface {
	Load(ctx context.Context, ref Reference) (*form.Form, error)
}

// Loader fetches documents by delegating to file, fs.FS or HTTP strategies.
type Loader struct {
	fs        fs.FS
	http      *http.Client
	allowHTTP bool
	timeout   time.Duration
}

var _ FormLoader = (*Loader)(nil)

// LoaderOption configures a Loader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	fileSystem     fs.FS
	httpClient     *http.Client
	allowHTTP      bool
	requestTimeout time.Duration
}

// WithFS sets the file system used for KindFS references.
func WithFS(fsys fs.FS) LoaderOption {
	return func(o *loaderOptions) {
		o.fileSystem = fsys
	}
}

// WithHTTPClient sets the client used for URL references. Passing a client
// enables URL loading.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(o *loaderOptions) {
		o.httpClient = client
	}
}

// WithHTTP enables URL references with a default client.
func WithHTTP(enabled bool) LoaderOption {
	return func(o *loaderOptions) {
		o.allowHTTP = enabled
	}
}

// WithRequestTimeout bounds URL requests.
func WithRequestTimeout(timeout time.Duration) LoaderOption {
	return func(o *loaderOptions) {
		o.requestTimeout = timeout
	}
}

// NewLoader constructs a Loader.
func NewLoader(options ...LoaderOption) *Loader {
	var opts loaderOptions
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&opts)
	}

	var httpClient *http.Client
	switch {
	case opts.httpClient != nil:
		clone := *opts.httpClient
		if opts.requestTimeout > 0 && clone.Timeout == 0 {
			clone.Timeout = opts.requestTimeout
		}
		httpClient = &clone
	case opts.allowHTTP:
		httpClient = &http.Client{Timeout: opts.requestTimeout}
	}

	return &Loader{
		fs:        opts.fileSystem,
		http:      httpClient,
		allowHTTP: httpClient != nil,
		timeout:   opts.requestTimeout,
	}
}

// Fetch returns the raw document behind ref.
func (l *Loader) Fetch(ctx context.Context, ref Reference) (Document, error) {
	if ref == nil {
		return Document{}, errors.New("formsource: reference is nil")
	}

	var (
		data []byte
		err  error
	)

	switch ref.Kind() {
	case KindInline:
		in, ok := ref.(inline)
		if !ok || in.raw == nil {
			return Document{}, fmt.Errorf("%w: inline reference has no raw document", ErrInvalidReference)
		}
		data = in.raw
	case KindFile:
		data, err = loadFile(ctx, ref.Location())
	case KindFS:
		data, err = loadFromFS(ctx, l.fs, ref.Location())
	case KindURL:
		if !l.allowHTTP {
			return Document{}, ErrHTTPDisabled
		}
		data, err = loadHTTP(ctx, l.http, ref.Location(), l.timeout)
	default:
		err = fmt.Errorf("%w: unsupported kind %q", ErrInvalidReference, ref.Kind())
	}
	if err != nil {
		return Document{}, err
	}

	return NewDocument(ref, data)
}

// Load fetches and decodes the form behind ref. Inline references holding a
// decoded form are returned as is.
func (l *Loader) Load(ctx context.Context, ref Reference) (*form.Form, error) {
	if in, ok := ref.(inline); ok && in.form != nil {
		return in.form, nil
	}
	doc, err := l.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return doc.Form()
}
