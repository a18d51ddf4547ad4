// Package hooks implements the named extension points a host uses to
// customise validation without changing the pipeline. Two call shapes are
// supported: Invoke (fire-and-check predicates, false when absent) and Alter
// (value transforms, identity when absent) with an optional callback form.
package hooks
