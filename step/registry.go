package step

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/workflow"
)

// Registry maps step kinds to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[workflow.StepKind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[workflow.StepKind]Handler),
	}
}

// Register binds h to kind, replacing any previous handler.
func (r *Registry) Register(kind workflow.StepKind, h Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("step: unknown kind %q", kind)
	}
	if h == nil {
		return fmt.Errorf("step: nil handler for kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind workflow.StepKind, h Handler) {
	if err := r.Register(kind, h); err != nil {
		panic(err)
	}
}

// Get returns the handler for kind.
func (r *Registry) Get(kind workflow.StepKind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Resolve returns the handler for s or an *aegis.UnknownStepError.
func (r *Registry) Resolve(s workflow.Step) (Handler, error) {
	h, ok := r.Get(s.Kind)
	if !ok {
		return nil, &aegis.UnknownStepError{StepID: s.ID, Kind: string(s.Kind)}
	}
	return h, nil
}

// Kinds returns the registered kinds in workflow.Kinds order.
func (r *Registry) Kinds() []workflow.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []workflow.StepKind
	for _, k := range workflow.Kinds() {
		if _, ok := r.handlers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Validate reports every step of def whose kind has no handler, joined into
// one error. It returns nil when def is fully covered.
func (r *Registry) Validate(def *workflow.Definition) error {
	var errs []error
	for _, s := range def.Steps() {
		if _, err := r.Resolve(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
