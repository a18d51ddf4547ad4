package processing

import (
	"context"
	"reflect"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/logging"
)

// Revalidate re-runs pc.Rules for every component instance whose value in
// pc.Data differs from its value in before. Rule findings recorded earlier
// for those paths are replaced; script findings are kept. Hidden paths are
// skipped.
//
// It runs after scripts changed the data, so values set by calculations,
// custom defaults and logic actions are checked like submitted ones.
func Revalidate(ctx context.Context, pc *Context, before map[string]any) error {
	if pc == nil || pc.Form == nil {
		return ErrNoForm
	}
	if pc.Scope == nil {
		pc.Scope = NewScope()
	}
	if pc.Components == nil || len(pc.Rules) == 0 {
		return nil
	}

	changed := 0
	check := NewProcessor("revalidate", func(ctx context.Context, pc *Context, t *Target) error {
		if !t.Component.IsInput() {
			return nil
		}
		if pc.Scope.IsHidden(t.Path) {
			t.Hidden = true
			return nil
		}
		was, hadValue := datapath.Get(before, t.Path)
		now, hasValue := datapath.Get(pc.Data, t.Path)
		if hadValue == hasValue && reflect.DeepEqual(was, now) {
			return nil
		}
		changed++
		pc.Scope.DropRuleErrors(t.Path)
		return processValidate(ctx, pc, t)
	})

	w := walker{pc: pc, processors: []Processor{check}}
	if err := w.list(ctx, pointers(pc.Components.Components), "", pc.Data); err != nil {
		return err
	}
	pc.Logger.Emit(logging.LevelDebug, "Revalidated script values", map[string]any{
		"changed":  changed,
		"findings": len(pc.Scope.Errors),
	})
	return nil
}
