package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Step describes one unit of onboarding work. Steps are immutable once
// part of a Definition.
type Step struct {
	// ID is unique within its workflow.
	ID string `json:"id"`

	// Kind selects the handler that performs the step.
	Kind StepKind `json:"kind"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// RequiresApproval allows the handler to park the run until a human
	// decision arrives.
	RequiresApproval bool `json:"requires_approval"`

	// EstimatedDuration is informational only.
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// Definition is an ordered, validated list of steps.
type Definition struct {
	name  string
	steps []Step
	index map[string]int
}

// New validates steps and returns a Definition named name. Step IDs must be
// non-empty and unique, and every step must use a known kind.
func New(name string, steps ...Step) (*Definition, error) {
	if name == "" {
		return nil, errors.New("workflow: name is required")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %s: at least one step is required", name)
	}

	d := &Definition{
		name:  name,
		steps: make([]Step, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("workflow %s: step %d has no id", name, i)
		}
		if _, dup := d.index[s.ID]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate step id %q", name, s.ID)
		}
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("workflow %s: step %q has unknown kind %q", name, s.ID, s.Kind)
		}
		d.steps[i] = s
		d.index[s.ID] = i
	}

	return d, nil
}

// MustNew is like New but panics on error. Use for static definitions.
func MustNew(name string, steps ...Step) *Definition {
	d, err := New(name, steps...)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the workflow name.
func (d *Definition) Name() string { return d.name }

// Len returns the number of steps.
func (d *Definition) Len() int { return len(d.steps) }

// Step returns the step at position i.
func (d *Definition) Step(i int) Step { return d.steps[i] }

// Steps returns a copy of the ordered steps.
func (d *Definition) Steps() []Step {
	out := make([]Step, len(d.steps))
	copy(out, d.steps)
	return out
}

// Index returns the position of the step with the given ID.
func (d *Definition) Index(stepID string) (int, bool) {
	i, ok := d.index[stepID]
	return i, ok
}

// Kinds returns the distinct kinds used by the definition, in step order.
func (d *Definition) Kinds() []StepKind {
	seen := make(map[StepKind]bool, len(d.steps))
	var out []StepKind
	for _, s := range d.steps {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			out = append(out, s.Kind)
		}
	}
	return out
}

// Decision is a human verdict on a step that is awaiting approval.
type Decision struct {
	StepID   string `json:"step_id"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}
