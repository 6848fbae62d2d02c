// Package ledger holds the per-client progress record of an onboarding run.
//
// A Ledger is mutated only through its transition methods, each of which
// checks the lifecycle invariants before touching state:
//
//   - a step's StartedAt is set iff the step has left pending
//   - a step's CompletedAt is set iff the step is completed or failed
//   - at most one step is in progress
//   - Percentage never decreases while the run is in progress
//   - a completed run has every step completed and Percentage 100
//   - a failed run has exactly one failed step and no later step started
//
// A Ledger is not safe for concurrent use; the owning run serialises access
// and hands out copies via Snapshot.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/workflow"
)

// StepStatus is the execution state of a single step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// StepState records the execution of one step.
type StepState struct {
	StepID      string         `json:"step_id"`
	Name        string         `json:"name"`
	Status      StepStatus     `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Ledger is the progress record of one client's run.
type Ledger struct {
	ClientID    id.ClientID   `json:"client_id"`
	Workflow    string        `json:"workflow"`
	Steps       []StepState   `json:"steps"`
	CurrentStep int           `json:"current_step"`
	Status      client.Status `json:"status"`
	Percentage  float64       `json:"progress_percentage"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// AwaitingApproval is the ID of the step parked for a decision, if any.
	AwaitingApproval string `json:"awaiting_approval,omitempty"`
}

// New returns an in-progress ledger with every step of def pending.
func New(clientID id.ClientID, def *workflow.Definition, now time.Time) *Ledger {
	steps := make([]StepState, def.Len())
	for i := range steps {
		s := def.Step(i)
		steps[i] = StepState{StepID: s.ID, Name: s.Name, Status: StepPending}
	}

	return &Ledger{
		ClientID:  clientID,
		Workflow:  def.Name(),
		Steps:     steps,
		Status:    client.StatusInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

// Begin moves step i from pending to in progress.
func (l *Ledger) Begin(i int, now time.Time) error {
	if err := l.checkRunning(i); err != nil {
		return err
	}
	if i != l.CurrentStep {
		return l.stateErr(i, fmt.Sprintf("not current (current is %d)", l.CurrentStep))
	}
	if st := l.Steps[i].Status; st != StepPending {
		return l.stateErr(i, string(st))
	}

	l.Steps[i].Status = StepInProgress
	l.Steps[i].StartedAt = &now
	l.UpdatedAt = now
	return nil
}

// Park marks in-progress step i as awaiting a human decision. The step stays
// in progress and CurrentStep does not advance.
func (l *Ledger) Park(i int, now time.Time) error {
	if err := l.checkInProgress(i); err != nil {
		return err
	}
	l.AwaitingApproval = l.Steps[i].StepID
	l.UpdatedAt = now
	return nil
}

// Complete moves in-progress step i to completed, records its metadata,
// advances CurrentStep and recomputes Percentage.
func (l *Ledger) Complete(i int, meta map[string]any, now time.Time) error {
	if err := l.checkInProgress(i); err != nil {
		return err
	}

	pct := Percentage(i+1, len(l.Steps))
	if pct < l.Percentage {
		return l.stateErr(i, "progress would decrease")
	}

	st := &l.Steps[i]
	st.Status = StepCompleted
	st.CompletedAt = &now
	st.Metadata = cloneMetadata(meta)

	l.CurrentStep = i + 1
	l.Percentage = pct
	l.AwaitingApproval = ""
	l.UpdatedAt = now
	return nil
}

// Fail marks step i failed with reason and fails the run. Step i must be
// the current step; a pending step is stamped as started and finished at
// now, which covers cancellation between steps.
func (l *Ledger) Fail(i int, reason string, now time.Time) error {
	if err := l.checkRunning(i); err != nil {
		return err
	}
	if i != l.CurrentStep {
		return l.stateErr(i, fmt.Sprintf("not current (current is %d)", l.CurrentStep))
	}

	st := &l.Steps[i]
	switch st.Status {
	case StepPending:
		st.StartedAt = &now
	case StepInProgress:
	default:
		return l.stateErr(i, string(st.Status))
	}

	st.Status = StepFailed
	st.CompletedAt = &now
	st.Error = reason

	l.Status = client.StatusFailed
	l.CompletedAt = &now
	l.AwaitingApproval = ""
	l.UpdatedAt = now
	return nil
}

// Finish completes the run. Every step must already be completed.
func (l *Ledger) Finish(now time.Time) error {
	if l.Status != client.StatusInProgress {
		return l.runErr(string(l.Status))
	}
	for i, st := range l.Steps {
		if st.Status != StepCompleted {
			return l.stateErr(i, string(st.Status))
		}
	}

	l.Status = client.StatusCompleted
	l.Percentage = 100
	l.CompletedAt = &now
	l.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Snapshot returns a deep copy of l.
func (l *Ledger) Snapshot() Ledger {
	cp := *l
	cp.Steps = make([]StepState, len(l.Steps))
	for i, st := range l.Steps {
		cp.Steps[i] = st.Clone()
	}
	if l.CompletedAt != nil {
		t := *l.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Terminal reports whether the run has completed or failed.
func (l *Ledger) Terminal() bool { return l.Status.Terminal() }

// Current returns the step at CurrentStep, or false past the end.
func (l *Ledger) Current() (StepState, bool) {
	if l.CurrentStep >= len(l.Steps) {
		return StepState{}, false
	}
	return l.Steps[l.CurrentStep], true
}

// Step returns the state of the step with the given ID.
func (l *Ledger) Step(stepID string) (StepState, int, bool) {
	for i, st := range l.Steps {
		if st.StepID == stepID {
			return st, i, true
		}
	}
	return StepState{}, -1, false
}

// CompletedCount returns the number of completed steps.
func (l *Ledger) CompletedCount() int {
	n := 0
	for _, st := range l.Steps {
		if st.Status == StepCompleted {
			n++
		}
	}
	return n
}

// Artifacts collects every string metadata value whose key ends in "_url",
// keyed by "<step_id>.<key>".
func (l *Ledger) Artifacts() map[string]string {
	out := make(map[string]string)
	for _, st := range l.Steps {
		for k, v := range st.Metadata {
			s, ok := v.(string)
			if !ok || !strings.HasSuffix(k, "_url") {
				continue
			}
			out[st.StepID+"."+k] = s
		}
	}
	return out
}

// Percentage returns done/total as a percentage in [0, 100].
func Percentage(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return float64(done) * 100 / float64(total)
}

// Clone returns a deep copy of st.
func (st StepState) Clone() StepState {
	cp := st
	if st.StartedAt != nil {
		t := *st.StartedAt
		cp.StartedAt = &t
	}
	if st.CompletedAt != nil {
		t := *st.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Metadata = cloneMetadata(st.Metadata)
	return cp
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneMetadata(vv)
		case []any:
			s := make([]any, len(vv))
			copy(s, vv)
			out[k] = s
		case []string:
			s := make([]string, len(vv))
			copy(s, vv)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

func (l *Ledger) checkRunning(i int) error {
	if i < 0 || i >= len(l.Steps) {
		return &aegis.NotFoundError{Kind: "step", ID: fmt.Sprintf("#%d", i)}
	}
	if l.Status != client.StatusInProgress {
		return l.runErr(string(l.Status))
	}
	return nil
}

func (l *Ledger) checkInProgress(i int) error {
	if err := l.checkRunning(i); err != nil {
		return err
	}
	if st := l.Steps[i].Status; st != StepInProgress {
		return l.stateErr(i, string(st))
	}
	return nil
}

func (l *Ledger) stateErr(i int, state string) error {
	return &aegis.InvalidStateError{
		ClientID: l.ClientID.String(),
		StepID:   l.Steps[i].StepID,
		State:    state,
	}
}

func (l *Ledger) runErr(state string) error {
	return &aegis.InvalidStateError{ClientID: l.ClientID.String(), State: state}
}
