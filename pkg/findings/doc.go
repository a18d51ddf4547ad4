// Package findings holds the error model of the validation pipeline: the raw
// findings produced by rules and scripts, the rendered details returned to
// callers, and the ValidationError that carries them.
package findings
