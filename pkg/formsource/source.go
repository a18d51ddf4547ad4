package formsource

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

// Reference identifies where a form definition comes from so loaders can
// work with inline documents, files, fs.FS entries or URLs without leaking
// implementation details.
type Reference interface {
	Kind() Kind
	Location() string
}

// Kind enumerates the loader modalities.
type Kind string

const (
	KindInline Kind = "inline"
	KindFile   Kind = "file"
	KindFS     Kind = "fs"
	KindURL    Kind = "url"
)

// ErrInvalidReference is returned for references that cannot be resolved.
var ErrInvalidReference = errors.New("formsource: invalid reference")

// ErrHTTPDisabled is returned for URL references when the loader was built
// without HTTP support.
var ErrHTTPDisabled = errors.New("formsource: http support disabled")

// inline carries an already available form or its raw JSON.
type inline struct {
	form *form.Form
	raw  []byte
	name string
}

func (s inline) Kind() Kind { return KindInline }

func (s inline) Location() string {
	if s.name != "" {
		return s.name
	}
	if s.form != nil && s.form.Path != "" {
		return s.form.Path
	}
	return "inline"
}

// Inline references a decoded form. The form is not copied; the pipeline
// never mutates it.
func Inline(f *form.Form) Reference {
	return inline{form: f}
}

// InlineJSON references a raw JSON (or YAML, when name ends in .yaml/.yml)
// form document. name is only used for diagnostics and may be empty.
func InlineJSON(name string, raw []byte) Reference {
	return inline{raw: append([]byte(nil), raw...), name: name}
}

type fileRef struct {
	path string
}

func (s fileRef) Kind() Kind       { return KindFile }
func (s fileRef) Location() string { return s.path }

// FromFile references a form stored on disk.
func FromFile(path string) Reference {
	return fileRef{path: filepath.Clean(path)}
}

type fsRef struct {
	name string
}

func (s fsRef) Kind() Kind       { return KindFS }
func (s fsRef) Location() string { return s.name }

// FromFS references a form inside the loader's fs.FS.
func FromFS(name string) Reference {
	return fsRef{name: name}
}

type urlRef struct {
	raw string
}

func (s urlRef) Kind() Kind       { return KindURL }
func (s urlRef) Location() string { return s.raw }

// FromURL parses raw and references the form served at it.
func FromURL(raw string) (Reference, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidReference)
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidReference, raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, parsed.Scheme)
	}
	return urlRef{raw: raw}, nil
}

// Parse guesses the reference kind from a command line style argument:
// http(s) URLs, "-" style inline JSON starting with { or [, and file paths.
func Parse(arg string) (Reference, error) {
	trimmed := strings.TrimSpace(arg)
	switch {
	case trimmed == "":
		return nil, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return FromURL(trimmed)
	case strings.HasPrefix(trimmed, "{"), strings.HasPrefix(trimmed, "["):
		return InlineJSON("", []byte(trimmed)), nil
	default:
		return FromFile(trimmed), nil
	}
}
