package findings

import (
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
)

// Level grades a finding. Only errors fail a submission.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Finding is a single rule outcome recorded in the processing scope. Message
// wins over Template when both are set; templates are rendered during
// aggregation with Context plus the submission data.
type Finding struct {
	Key      string
	Path     string
	Rule     string
	Template string
	Message  string
	Level    Level
	Context  map[string]any
}

// IsError reports whether the finding fails validation. An unset level counts
// as an error.
func (f Finding) IsError() bool {
	return f.Level == "" || f.Level == LevelError
}

// Detail is the rendered form of a finding.
type Detail struct {
	Message string         `json:"message"`
	Level   Level          `json:"level"`
	Path    []any          `json:"path"`
	Context map[string]any `json:"context,omitempty"`
}

// ValidationError reports a submission that failed validation.
type ValidationError struct {
	Details []Detail `json:"details"`
}

// Name identifies the error kind in serialized results.
func (e *ValidationError) Name() string {
	return "ValidationError"
}

// Type mirrors Name for callers that classify errors through Type().
func (e *ValidationError) Type() string {
	return e.Name()
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Details) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(e.Details))
	for _, detail := range e.Details {
		messages = append(messages, detail.Message)
	}
	return strings.Join(messages, "; ")
}

// HasErrors reports whether any finding fails validation.
func HasErrors(list []Finding) bool {
	for _, f := range list {
		if f.IsError() {
			return true
		}
	}
	return false
}

// New builds a finding for rule at path using the default message template of
// the rule.
func New(key, path, rule string, context map[string]any) Finding {
	ctx := make(map[string]any, len(context)+3)
	for k, v := range context {
		ctx[k] = v
	}
	if _, ok := ctx["key"]; !ok {
		ctx["key"] = key
	}
	if _, ok := ctx["path"]; !ok {
		ctx["path"] = path
	}
	ctx["validator"] = rule
	return Finding{
		Key:      key,
		Path:     path,
		Rule:     rule,
		Template: MessageFor(rule),
		Level:    LevelError,
		Context:  ctx,
	}
}

func pathElements(path string) []any {
	elements := datapath.Elements(path)
	if elements == nil {
		return []any{}
	}
	return elements
}
