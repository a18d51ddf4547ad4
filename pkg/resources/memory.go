package resources

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// Memory is an in-process Store.
type Memory struct {
	mu          sync.RWMutex
	resources   map[string]*form.Form
	submissions map[string][]map[string]any
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		resources:   make(map[string]*form.Form),
		submissions: make(map[string][]map[string]any),
	}
}

// PutResource registers a resource definition under id.
func (m *Memory) PutResource(id string, f *form.Form) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[id] = f
}

// PutSubmission stores submission data for the form keyed formKey.
func (m *Memory) PutSubmission(formKey string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[formKey] = append(m.submissions[formKey], datapath.CloneMap(data))
}

// LoadResource implements processing.ResourceLoader.
func (m *Memory) LoadResource(ctx context.Context, id string) (*form.Form, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.resources[id]
	return f, ok, nil
}

// IsUnique implements processing.UniqueChecker.
func (m *Memory) IsUnique(ctx context.Context, req processing.UniqueRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, stored := range m.submissions[FormKey(req.Form)] {
		for _, value := range valueAt(stored, req.Path) {
			if sameValue(value, req.Value) {
				return false, nil
			}
		}
	}
	return true, nil
}

// Fetch serves resource data sources with the stored submissions of the
// resource.
func (m *Memory) Fetch(ctx context.Context, req sandbox.FetchRequest) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.DataSrc != "resource" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, req.DataSrc)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.submissions[req.Resource]
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, datapath.CloneMap(row))
	}
	return out, nil
}
