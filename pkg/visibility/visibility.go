// Package visibility decides whether a component is shown for a given
// submission, from compact rule strings attached to its conditional.
package visibility

// Evaluator determines whether the component at path is visible.
type Evaluator interface {
	Eval(path, rule string, ctx Context) (bool, error)
}

// Context provides the values a rule can reference. Data is the whole
// submission, Row the object holding the component (the submission root for
// top-level components) and Extras any host supplied values such as config.
type Context struct {
	Data   map[string]any
	Row    map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(path, rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(path, rule string, ctx Context) (bool, error) {
	return fn(path, rule, ctx)
}
