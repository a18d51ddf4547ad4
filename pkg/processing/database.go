package processing

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

// Database is the persistence capability rules and dereferencing rely on.
// Hosts replace it through the validationDatabaseHooks extension point.
type Database interface {
	IsUnique(ctx context.Context, req UniqueRequest) (bool, error)
	DereferenceDataTableComponent(ctx context.Context, c *form.Component) ([]form.Component, error)
}

// UniqueRequest describes a uniqueness lookup for one value.
type UniqueRequest struct {
	Form      *form.Form
	Component *form.Component
	Path      string
	Value     any
}

// ResourceLoader resolves a resource id to its form definition. A missing
// resource reports ok == false with a nil error.
type ResourceLoader interface {
	LoadResource(ctx context.Context, id string) (*form.Form, bool, error)
}

// UniqueChecker answers uniqueness lookups.
type UniqueChecker interface {
	IsUnique(ctx context.Context, req UniqueRequest) (bool, error)
}

// DefaultDatabase is the capability installed when the host provides none.
// Without a checker every value is unique; without a loader every resource
// is missing.
type DefaultDatabase struct {
	Resources ResourceLoader
	Unique    UniqueChecker
}

// IsUnique delegates to the checker or reports true.
func (d DefaultDatabase) IsUnique(ctx context.Context, req UniqueRequest) (bool, error) {
	if d.Unique == nil {
		return true, nil
	}
	return d.Unique.IsUnique(ctx, req)
}

// DereferenceDataTableComponent returns the components of the resource a
// datatable points at. Components that do not reference a resource yield
// nothing.
func (d DefaultDatabase) DereferenceDataTableComponent(ctx context.Context, c *form.Component) ([]form.Component, error) {
	if !NeedsDereference(c) {
		return nil, nil
	}
	id := strings.TrimSpace(c.Fetch.Resource)
	if d.Resources == nil {
		return nil, &ResourceNotFoundError{Resource: id}
	}
	resource, ok, err := d.Resources.LoadResource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("processing: load resource %s: %w", id, err)
	}
	if !ok || resource == nil {
		return nil, &ResourceNotFoundError{Resource: id}
	}
	return form.CloneAll(resource.Components), nil
}

// NeedsDereference reports whether c is a datatable sourcing its columns from
// a resource.
func NeedsDereference(c *form.Component) bool {
	return c != nil &&
		strings.EqualFold(c.Type, "datatable") &&
		c.Fetch != nil &&
		c.Fetch.DataSrc == "resource" &&
		strings.TrimSpace(c.Fetch.Resource) != ""
}

// ResourceNotFoundError reports a cross-reference that could not be resolved.
type ResourceNotFoundError struct {
	Resource string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("Resource at %s not found for dereferencing", e.Resource)
}

// Type names the error in runtime failure results.
func (e *ResourceNotFoundError) Type() string {
	return "ResourceNotFoundError"
}

// DereferenceError reports a dereference chain that loops or nests too deep.
type DereferenceError struct {
	Resource string
	Chain    []string
	Reason   string
}

func (e *DereferenceError) Error() string {
	return fmt.Sprintf("processing: dereference %s: %s (chain %s)", e.Resource, e.Reason, strings.Join(e.Chain, " -> "))
}

// Type names the error in runtime failure results.
func (e *DereferenceError) Type() string {
	return "DereferenceError"
}
