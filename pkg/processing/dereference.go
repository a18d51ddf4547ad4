package processing

import (
	"context"
	"errors"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

// MaxDereferenceDepth bounds how many resources may be nested through
// datatables referencing other resources.
const MaxDereferenceDepth = 16

// Dereference resolves every datatable that sources its columns from a
// resource, appending the resource's components after the datatable's own
// children. Sibling lookups run concurrently; splicing always follows
// document order so traversal stays deterministic. Resources referenced by
// spliced components are followed up to MaxDereferenceDepth, and a resource
// that references itself through the chain is an error.
func Dereference(ctx context.Context, db Database, components []form.Component) error {
	if db == nil {
		db = DefaultDatabase{}
	}
	r := resolver{db: db}
	return r.resolve(ctx, pointers(components), 0, nil)
}

type resolver struct {
	db Database
}

func (r resolver) resolve(ctx context.Context, list []*form.Component, depth int, chain []string) error {
	if len(list) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fetched := make([][]form.Component, len(list))
	errs := make([]error, len(list))
	group, gctx := errgroup.WithContext(ctx)
	for idx, c := range list {
		if !NeedsDereference(c) {
			continue
		}
		id := strings.TrimSpace(c.Fetch.Resource)
		if slices.Contains(chain, id) {
			return &DereferenceError{Resource: id, Chain: append(slices.Clone(chain), id), Reason: "reference cycle"}
		}
		if depth >= MaxDereferenceDepth {
			return &DereferenceError{Resource: id, Chain: append(slices.Clone(chain), id), Reason: "maximum depth exceeded"}
		}
		group.Go(func() error {
			components, err := r.db.DereferenceDataTableComponent(gctx, c)
			fetched[idx] = components
			errs[idx] = err
			return err
		})
	}
	if err := group.Wait(); err != nil {
		// report the first failure in document order, skipping siblings that
		// were only cancelled because another lookup failed
		for _, e := range errs {
			if e == nil || (errors.Is(e, context.Canceled) && ctx.Err() == nil) {
				continue
			}
			return e
		}
		return err
	}

	for idx, c := range list {
		if err := r.resolve(ctx, c.Children(), depth, chain); err != nil {
			return err
		}
		if len(fetched[idx]) == 0 {
			continue
		}
		nested := append(slices.Clone(chain), strings.TrimSpace(c.Fetch.Resource))
		if err := r.resolve(ctx, pointers(fetched[idx]), depth+1, nested); err != nil {
			return err
		}
		c.Components = append(c.Components, fetched[idx]...)
	}
	return nil
}

func pointers(components []form.Component) []*form.Component {
	out := make([]*form.Component, len(components))
	for idx := range components {
		out[idx] = &components[idx]
	}
	return out
}
