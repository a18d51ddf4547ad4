// Package validator runs the submission validation pipeline for one form:
// the processing context is built, the structural stage normalizes data and
// applies rules, the sandbox evaluates author scripts, fetched values are
// removed and findings are aggregated into a ValidationError.
//
// A Validator is bound to one form and token bag. It is cheap to build and
// may be reused; every Validate call owns its own processing context.
//
//	v, err := validator.New(f, tokens, validator.WithEvaluator(evaluator))
//	data, components, err := v.Validate(ctx, &validator.Submission{Data: data})
package validator
