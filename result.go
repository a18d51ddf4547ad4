package formvalidator

import (
	"errors"
	"time"

	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/metrics"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

// Result is the outcome of one ValidateSubmission call. Exactly one of the
// three shapes applies: success, validation failure (Errors set) or runtime
// failure (Error set).
type Result struct {
	Success   bool              `json:"success"`
	Errors    []findings.Detail `json:"errors,omitempty"`
	Error     *Failure          `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"requestId,omitempty"`

	// Skipped reports that the validateSubmission hook handled the call.
	Skipped bool `json:"skipped,omitempty"`
	// Data is the normalized submission data of a successful validation.
	Data map[string]any `json:"data,omitempty"`
	// Components is the component tree that was validated, including
	// dereferenced resource components.
	Components []form.Component `json:"-"`
	// Scope is the processing scope left by the pipeline.
	Scope *processing.Scope `json:"-"`
}

// Failure describes a runtime failure.
type Failure struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorType names err for Failure.Type: the Type() of the first error in the
// chain that has one, "Error" otherwise.
func ErrorType(err error) string {
	var typed interface{ Type() string }
	if errors.As(err, &typed) {
		if name := typed.Type(); name != "" {
			return name
		}
	}
	return "Error"
}

func outcome(r Result) string {
	switch {
	case r.Skipped:
		return metrics.OutcomeSkipped
	case r.Success:
		return metrics.OutcomeSuccess
	case r.Error != nil:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeInvalid
	}
}
