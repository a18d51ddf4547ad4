package formsource

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

// Document wraps a raw form payload and its origin.
type Document struct {
	ref Reference
	raw []byte
}

// NewDocument constructs a Document wrapper while validating the inputs.
func NewDocument(ref Reference, raw []byte) (Document, error) {
	if ref == nil {
		return Document{}, errors.New("formsource: reference is required")
	}
	if len(raw) == 0 {
		return Document{}, errors.New("formsource: raw document is empty")
	}
	return Document{ref: ref, raw: append([]byte(nil), raw...)}, nil
}

// Reference returns the origin of the document.
func (d Document) Reference() Reference {
	return d.ref
}

// Raw returns a copy of the payload.
func (d Document) Raw() []byte {
	return append([]byte(nil), d.raw...)
}

// Location returns the string identifier for the origin.
func (d Document) Location() string {
	if d.ref == nil {
		return ""
	}
	return d.ref.Location()
}

// Form decodes the payload. YAML is chosen by the .yaml/.yml extension of
// the location, JSON otherwise.
func (d Document) Form() (*form.Form, error) {
	var (
		f   *form.Form
		err error
	)
	if isYAML(d.Location()) {
		f, err = form.ParseYAML(d.raw)
	} else {
		f, err = form.Parse(d.raw)
	}
	if err != nil {
		return nil, fmt.Errorf("formsource: %s: %w", d.Location(), err)
	}
	return f, nil
}

func isYAML(location string) bool {
	location = strings.ToLower(location)
	if idx := strings.IndexAny(location, "?#"); idx >= 0 {
		location = location[:idx]
	}
	switch path.Ext(location) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
