// Package processing runs the structural stage of submission validation. It
// resolves cross-referenced components into a per-call view of the form, then
// walks that view in document order applying conditional visibility, default
// values, type normalisation and the ordered rule set, collecting findings in
// the scope.
package processing
