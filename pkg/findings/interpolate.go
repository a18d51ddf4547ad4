package findings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
)

// Interpolator renders message templates with pongo2. Parsed templates are
// cached by source so repeated rule messages are compiled once.
type Interpolator struct {
	mu        sync.RWMutex
	set       *pongo2.TemplateSet
	limit     int
	templates map[string]*pongo2.Template
}

// ErrTemplateFiles is returned when a template asks for another template by
// name. Templates are always rendered from strings.
var ErrTemplateFiles = errors.New("findings: templates cannot load files")

// MaxScriptTemplate caps the source length accepted by a script interpolator.
const MaxScriptTemplate = 64 << 10

// fileTags are the tags that reach the template loader.
var fileTags = []string{"include", "ssi", "import", "extends"}

// Rendering time of a script template must stay proportional to the template
// and its input, which rules out loops, recursion and generated text.
var (
	unboundedTags    = []string{"for", "macro", "lorem"}
	unboundedFilters = []string{"center", "ljust", "rjust"}
)

// NewInterpolator constructs an interpolator with its own template set. The
// set never touches the filesystem.
func NewInterpolator() *Interpolator {
	return newInterpolator("findings", 0, nil, nil)
}

// NewScriptInterpolator constructs an interpolator for templates supplied at
// run time by form scripts. On top of NewInterpolator it refuses loops,
// macros and padding filters, and rejects sources over MaxScriptTemplate.
func NewScriptInterpolator() *Interpolator {
	return newInterpolator("scripts", MaxScriptTemplate, unboundedTags, unboundedFilters)
}

func newInterpolator(name string, limit int, tags, filters []string) *Interpolator {
	registerDefaultFilters()
	set := pongo2.NewSet(name, refusingLoader{})
	for _, tag := range append(append([]string(nil), fileTags...), tags...) {
		_ = set.BanTag(tag)
	}
	for _, filter := range filters {
		_ = set.BanFilter(filter)
	}
	return &Interpolator{
		set:       set,
		limit:     limit,
		templates: make(map[string]*pongo2.Template),
	}
}

// refusingLoader is a pongo2.TemplateLoader that resolves no name.
type refusingLoader struct{}

func (refusingLoader) Abs(_, name string) string { return name }

func (refusingLoader) Get(path string) (io.Reader, error) {
	return nil, fmt.Errorf("%w: %q", ErrTemplateFiles, path)
}

var (
	defaultOnce         sync.Once
	defaultInterpolator *Interpolator
)

// Default returns the shared interpolator.
func Default() *Interpolator {
	defaultOnce.Do(func() {
		defaultInterpolator = NewInterpolator()
	})
	return defaultInterpolator
}

// Render executes source against data. Output is not HTML escaped; labels are
// sanitized before they reach the context.
func (i *Interpolator) Render(source string, data map[string]any) (string, error) {
	if i == nil || i.set == nil {
		return "", errors.New("findings: interpolator is nil")
	}
	if !isTemplateContent(source) {
		return source, nil
	}
	if i.limit > 0 && len(source) > i.limit {
		return "", fmt.Errorf("findings: template exceeds %d bytes", i.limit)
	}

	tmpl, err := i.template(source)
	if err != nil {
		return "", err
	}

	viewContext, err := convertToContext(data)
	if err != nil {
		return "", fmt.Errorf("findings: convert data: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(viewContext, &buf); err != nil {
		return "", fmt.Errorf("findings: execute template: %w", err)
	}
	return buf.String(), nil
}

// RenderString is Render that falls back to the raw template on failure, the
// behaviour scripts expect from a lenient template helper.
func (i *Interpolator) RenderString(source string, data map[string]any) string {
	out, err := i.Render(source, data)
	if err != nil {
		return source
	}
	return out
}

// Details renders findings into caller facing details. Only error level
// findings are included. The submission data is exposed to templates as
// `data`.
func (i *Interpolator) Details(list []Finding, data map[string]any) []Detail {
	out := make([]Detail, 0, len(list))
	for _, f := range list {
		if !f.IsError() {
			continue
		}
		out = append(out, i.detail(f, data))
	}
	return out
}

func (i *Interpolator) detail(f Finding, data map[string]any) Detail {
	ctx := make(map[string]any, len(f.Context)+1)
	for key, value := range f.Context {
		ctx[key] = value
	}
	if label, ok := ctx["label"].(string); ok {
		ctx["label"] = SanitizeLabel(label)
	}
	if field, ok := ctx["field"].(string); ok {
		ctx["field"] = SanitizeLabel(field)
	} else if label, ok := ctx["label"].(string); ok && label != "" {
		ctx["field"] = label
	} else {
		ctx["field"] = f.Key
	}

	message := f.Message
	if message == "" {
		view := make(map[string]any, len(ctx)+1)
		for key, value := range ctx {
			view[key] = value
		}
		view["data"] = data
		if row, ok := rowFor(data, f.Path); ok {
			view["row"] = row
		}
		message = i.RenderString(f.Template, view)
	}

	level := f.Level
	if level == "" {
		level = LevelError
	}
	return Detail{
		Message: strings.TrimSpace(message),
		Level:   level,
		Path:    pathElements(f.Path),
		Context: ctx,
	}
}

// Interpolate renders findings with the shared interpolator.
func Interpolate(list []Finding, data map[string]any) []Detail {
	return Default().Details(list, data)
}

// NewValidationError renders findings into a ValidationError. It returns nil
// when no finding fails validation.
func NewValidationError(list []Finding, data map[string]any) *ValidationError {
	return Default().ValidationError(list, data)
}

// ValidationError is NewValidationError rendered with i.
func (i *Interpolator) ValidationError(list []Finding, data map[string]any) *ValidationError {
	if !HasErrors(list) {
		return nil
	}
	return &ValidationError{Details: i.Details(list, data)}
}

func (i *Interpolator) template(source string) (*pongo2.Template, error) {
	i.mu.RLock()
	if tmpl, ok := i.templates[source]; ok {
		i.mu.RUnlock()
		return tmpl, nil
	}
	i.mu.RUnlock()

	i.mu.Lock()
	defer i.mu.Unlock()

	if tmpl, ok := i.templates[source]; ok {
		return tmpl, nil
	}
	tmpl, err := i.set.FromString("{% autoescape off %}" + source + "{% endautoescape %}")
	if err != nil {
		return nil, fmt.Errorf("findings: parse template: %w", err)
	}
	i.templates[source] = tmpl
	return tmpl, nil
}

// rowFor returns the object that holds the value at path, the `row` of a
// component inside a data grid.
func rowFor(data map[string]any, path string) (map[string]any, bool) {
	segments := datapath.Parse(path)
	if len(segments) < 2 {
		return nil, false
	}
	parent, ok := datapath.Get(data, datapath.Join(segments[:len(segments)-1]))
	if !ok {
		return nil, false
	}
	row, ok := parent.(map[string]any)
	return row, ok
}

func isTemplateContent(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

func isCallable(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Func
}

func convertToContext(data map[string]any) (pongo2.Context, error) {
	out := make(pongo2.Context, len(data))
	for key, value := range data {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		converted, err := convertValue(value)
		if err != nil {
			return nil, err
		}
		out[key] = converted
	}
	return out, nil
}

func convertValue(value any) (any, error) {
	if value == nil || isCallable(value) {
		return value, nil
	}
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			converted, err := convertValue(child)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, child := range v {
			converted, err := convertValue(child)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case float64:
		return displayNumber(v), nil
	case float32:
		return displayNumber(float64(v)), nil
	case string, bool, int, int64, int32:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return convertValue(decoded)
	}
}

// displayNumber keeps integral numbers as ints and formats the rest without
// trailing zeros; pongo2 prints floats with a fixed precision.
func displayNumber(v float64) any {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return int64(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func registerDefaultFilters() {
	if !pongo2.FilterExists("trim") {
		_ = pongo2.RegisterFilter("trim", filterTrim)
	}
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.Len() <= 0 {
		return pongo2.AsValue(""), nil
	}
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}
