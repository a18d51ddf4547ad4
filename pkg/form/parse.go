package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
)

// ErrEmptyDocument is returned when a form document has no content.
var ErrEmptyDocument = errors.New("form: empty document")

// Parse decodes a Form.io JSON form definition. A bare component array is
// accepted and treated as the form's component list.
func Parse(raw []byte) (*Form, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrEmptyDocument
	}

	if trimmed[0] == '[' {
		var components []Component
		if err := json.Unmarshal(trimmed, &components); err != nil {
			return nil, fmt.Errorf("form: decode components: %w", err)
		}
		return &Form{Components: components}, nil
	}

	var out Form
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("form: decode form: %w", err)
	}
	return &out, nil
}

// ParseYAML decodes a YAML authored form. The document is normalised to its
// JSON shape first so both formats share the same decoding rules.
func ParseYAML(raw []byte) (*Form, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyDocument
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("form: decode yaml: %w", err)
	}
	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("form: encode yaml document: %w", err)
	}
	return Parse(payload)
}

// normalizeYAML converts map[any]any nodes produced for non-string keys into
// map[string]any so the tree can be encoded as JSON.
func normalizeYAML(value any) (any, error) {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			converted, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			name, ok := key.(string)
			if !ok {
				name = fmt.Sprint(key)
			}
			converted, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[name] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for idx, child := range typed {
			converted, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[idx] = converted
		}
		return out, nil
	default:
		return value, nil
	}
}

// Clone deep-copies the form.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	out := *f
	out.Config = datapath.CloneMap(f.Config)
	out.Components = CloneAll(f.Components)
	return &out
}
