package processing

import (
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/findings"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
)

// TokenHeader is the token key whose value becomes Config.Token.
const TokenHeader = "x-jwt-token"

// Context is the unit of work of one validation call. It is created per call
// and never shared between goroutines.
type Context struct {
	Form       *form.Form
	Components *form.Resolved
	Data       map[string]any
	Scope      *Scope
	Config     Config
	Processors []Processor
	Rules      []Rule
	Logger     logging.Logger
}

// Database returns the configured database capability or the default one.
func (c *Context) Database() Database {
	if c == nil || c.Config.Database == nil {
		return DefaultDatabase{}
	}
	return c.Config.Database
}

// Config is the merged configuration of a call. Values holds form, project
// and caller settings; the remaining fields are installed by the pipeline.
type Config struct {
	Values   map[string]any
	Server   bool
	Token    string
	Tokens   map[string]string
	Database Database
}

// Map renders the config the way scripts see it.
func (c Config) Map() map[string]any {
	out := datapath.CloneMap(c.Values)
	if out == nil {
		out = make(map[string]any)
	}
	out["server"] = c.Server
	if c.Token != "" {
		out["token"] = c.Token
	}
	if len(c.Tokens) > 0 {
		tokens := make(map[string]any, len(c.Tokens))
		for key, value := range c.Tokens {
			tokens[key] = value
		}
		out["tokens"] = tokens
	}
	return out
}

// Provenance records where fetched data came from.
type Provenance struct {
	Source   string `json:"source"`
	Resource string `json:"resource,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ConditionalState records the visibility decision taken for a path.
type ConditionalState struct {
	Path          string `json:"path"`
	Key           string `json:"key"`
	Hidden        bool   `json:"conditionallyHidden"`
	ClearedOnHide bool   `json:"clearedOnHide,omitempty"`
}

// Scope accumulates cross-stage state for one call.
type Scope struct {
	Errors       []findings.Finding    `json:"errors,omitempty"`
	Fetched      map[string]Provenance `json:"fetched,omitempty"`
	Conditionals []ConditionalState    `json:"conditionals,omitempty"`
	Calculated   map[string]any        `json:"calculated,omitempty"`
	Extras       map[string]any        `json:"extras,omitempty"`
}

// NewScope returns an empty scope with its maps allocated.
func NewScope() *Scope {
	return &Scope{
		Fetched:    make(map[string]Provenance),
		Calculated: make(map[string]any),
		Extras:     make(map[string]any),
	}
}

// AddError appends a finding.
func (s *Scope) AddError(f findings.Finding) {
	s.Errors = append(s.Errors, f)
}

// MarkFetched records that path was populated from an external source.
func (s *Scope) MarkFetched(path string, p Provenance) {
	if s.Fetched == nil {
		s.Fetched = make(map[string]Provenance)
	}
	s.Fetched[path] = p
}

// SetConditional records the visibility of path, replacing an earlier
// decision for the same path.
func (s *Scope) SetConditional(state ConditionalState) {
	for idx := range s.Conditionals {
		if s.Conditionals[idx].Path == state.Path {
			s.Conditionals[idx] = state
			return
		}
	}
	s.Conditionals = append(s.Conditionals, state)
}

// IsHidden reports whether path or one of its ancestors is conditionally
// hidden.
func (s *Scope) IsHidden(path string) bool {
	if s == nil {
		return false
	}
	for _, state := range s.Conditionals {
		if !state.Hidden {
			continue
		}
		if state.Path == path || strings.HasPrefix(path, state.Path+".") || strings.HasPrefix(path, state.Path+"[") {
			return true
		}
	}
	return false
}

// DropErrorsUnder removes findings recorded for path and its descendants.
func (s *Scope) DropErrorsUnder(path string) {
	kept := s.Errors[:0]
	for _, f := range s.Errors {
		if f.Path == path || strings.HasPrefix(f.Path, path+".") || strings.HasPrefix(f.Path, path+"[") {
			continue
		}
		kept = append(kept, f)
	}
	s.Errors = kept
}

// ScriptRule names findings recorded by custom validation scripts.
const ScriptRule = "custom"

// DropRuleErrors removes the findings recorded for exactly path by structural
// rules. Script findings are kept.
func (s *Scope) DropRuleErrors(path string) {
	kept := s.Errors[:0]
	for _, f := range s.Errors {
		if f.Path == path && f.Rule != ScriptRule {
			continue
		}
		kept = append(kept, f)
	}
	s.Errors = kept
}

// Clone deep-copies the scope.
func (s *Scope) Clone() *Scope {
	if s == nil {
		return NewScope()
	}
	out := &Scope{
		Errors:       make([]findings.Finding, len(s.Errors)),
		Fetched:      make(map[string]Provenance, len(s.Fetched)),
		Conditionals: append([]ConditionalState(nil), s.Conditionals...),
		Calculated:   datapath.CloneMap(s.Calculated),
		Extras:       datapath.CloneMap(s.Extras),
	}
	for idx, f := range s.Errors {
		f.Context = datapath.CloneMap(f.Context)
		out.Errors[idx] = f
	}
	for path, p := range s.Fetched {
		out.Fetched[path] = p
	}
	if out.Calculated == nil {
		out.Calculated = make(map[string]any)
	}
	if out.Extras == nil {
		out.Extras = make(map[string]any)
	}
	return out
}

// Target is the component instance being processed: a component bound to a
// concrete data path and row.
type Target struct {
	Component *form.Component
	Path      string
	Row       map[string]any
	Hidden    bool
}
