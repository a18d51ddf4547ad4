package validator

import (
	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/hooks"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/processing/rules"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// Submission is the document being validated. Meta carries the extra
// submission properties supplied by the caller; Scope is populated once
// validation ran.
type Submission struct {
	Data  map[string]any    `json:"data"`
	Meta  map[string]any    `json:"-"`
	Scope *processing.Scope `json:"scope,omitempty"`
}

// BuildContext assembles the processing context of one call, working on a
// copy of the submission data. Configuration layers merge with form config
// overridden by project config overridden by opts.Config. The database
// capability and the rule set pass through the validationDatabaseHooks and
// serverRules extension points.
func BuildContext(f *form.Form, sub *Submission, tokens map[string]string, registry *hooks.Registry, opts Options) *processing.Context {
	values := make(map[string]any)
	for _, layer := range []map[string]any{f.Config, opts.ProjectConfig, opts.Config} {
		for key, value := range layer {
			values[key] = datapath.Clone(value)
		}
	}

	var db processing.Database = processing.DefaultDatabase{
		Resources: opts.Resources,
		Unique:    opts.Unique,
	}
	db = hooks.AlterAs(registry, hooks.DatabaseHooks, db, f, tokens)

	ruleSet := hooks.AlterAs(registry, hooks.ServerRules, rules.Server())

	var data map[string]any
	if sub != nil {
		data = datapath.CloneMap(sub.Data)
	}
	return &processing.Context{
		Form:       f,
		Components: form.NewResolved(f.Components),
		Data:       data,
		Scope:      processing.NewScope(),
		Config: processing.Config{
			Values:   values,
			Server:   true,
			Token:    tokens[processing.TokenHeader],
			Tokens:   tokens,
			Database: db,
		},
		Rules:  ruleSet,
		Logger: logging.Nop(),
	}
}

// AdditionalDependencies returns the dynamicVmDependencies for f.
func AdditionalDependencies(registry *hooks.Registry, f *form.Form) []sandbox.Dependency {
	return hooks.AlterAs(registry, hooks.DynamicVMDependencies, []sandbox.Dependency{}, f)
}
