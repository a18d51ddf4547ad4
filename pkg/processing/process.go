package processing

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
)

// ErrNoForm is returned when Process runs without a form.
var ErrNoForm = errors.New("processing: form is required")

// Process runs the structural stage: cross-references are resolved into
// pc.Components, then every component instance is processed in document
// order. Findings are appended to pc.Scope.Errors; the returned error is
// reserved for failures that abort the call.
func Process(ctx context.Context, pc *Context) error {
	if pc == nil || pc.Form == nil {
		return ErrNoForm
	}
	if pc.Scope == nil {
		pc.Scope = NewScope()
	}
	if pc.Data == nil {
		pc.Data = make(map[string]any)
	}
	if pc.Components == nil {
		pc.Components = form.NewResolved(pc.Form.Components)
	}

	if err := Dereference(ctx, pc.Database(), pc.Components.Components); err != nil {
		return err
	}
	pc.Components.Reindex()

	processors := pc.Processors
	if len(processors) == 0 {
		processors = SubmissionProcessors()
	}
	w := walker{pc: pc, processors: processors}
	if err := w.list(ctx, pointers(pc.Components.Components), "", pc.Data); err != nil {
		return err
	}

	pc.Logger.Emit(logging.LevelDebug, "Structural processing complete", map[string]any{
		"findings": len(pc.Scope.Errors),
	})
	return nil
}

type walker struct {
	pc         *Context
	processors []Processor
}

func (w walker) list(ctx context.Context, list []*form.Component, parent string, row map[string]any) error {
	for _, c := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.component(ctx, c, parent, row); err != nil {
			return err
		}
	}
	return nil
}

func (w walker) component(ctx context.Context, c *form.Component, parent string, row map[string]any) error {
	path := parent
	if c.IsInput() {
		path = datapath.Child(parent, c.Key)
	}
	t := &Target{Component: c, Path: path, Row: row}
	for _, p := range w.processors {
		if err := p.Process(ctx, w.pc, t); err != nil {
			return fmt.Errorf("processing: %s %s: %w", p.Name(), path, err)
		}
		if t.Hidden {
			return nil
		}
	}

	switch c.Kind() {
	case form.KindLayout:
		return w.list(ctx, c.Children(), parent, row)
	case form.KindContainer:
		return w.list(ctx, c.Children(), path, objectAt(w.pc.Data, path))
	case form.KindArray:
		value, _ := datapath.Get(w.pc.Data, path)
		rows, _ := value.([]any)
		for idx := range rows {
			rowPath := datapath.Index(path, idx)
			if err := w.list(ctx, c.Children(), rowPath, objectAt(w.pc.Data, rowPath)); err != nil {
				return err
			}
		}
	}
	return nil
}

// objectAt returns the object stored at path, or an empty detached object.
func objectAt(data map[string]any, path string) map[string]any {
	value, _ := datapath.Get(data, path)
	if obj, ok := value.(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}
