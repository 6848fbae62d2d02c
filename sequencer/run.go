package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/ledger"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/pacing"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// Run is the handle of one client's onboarding run.
//
// The run goroutine owns the ledger except while the run is parked, when
// Decide may take it over. Both sides go through mu, and notifications are
// emitted under emitMu, which is taken before mu is released so observers
// see transitions in order.
type Run struct {
	seq    *Sequencer
	client *client.Client
	def    *workflow.Definition

	mu     sync.Mutex
	ledger *ledger.Ledger

	emitMu sync.Mutex

	// decisions carries the verdict from Decide to the parked goroutine.
	decisions chan bool

	ctx          context.Context
	stop         context.CancelFunc
	cancelOnce   sync.Once
	cancelReason string

	done chan struct{}

	// initial is the ledger as created, before the goroutine starts.
	initial ledger.Ledger
}

func newRun(s *Sequencer, parent context.Context, c *client.Client, def *workflow.Definition) *Run {
	ctx, stop := context.WithCancel(context.WithoutCancel(parent))
	return &Run{
		seq:       s,
		client:    c,
		def:       def,
		ledger:    ledger.New(c.ID, def, s.clock()),
		decisions: make(chan bool, 1),
		ctx:       ctx,
		stop:      stop,
		done:      make(chan struct{}),
	}
}

// Initial returns a copy of the ledger as it was when the run was
// started: in progress, nothing done, every step pending.
func (r *Run) Initial() ledger.Ledger {
	l := r.initial
	return l.Snapshot()
}

// Client returns the client being onboarded.
func (r *Run) Client() *client.Client { return r.client }

// Definition returns the workflow the run executes.
func (r *Run) Definition() *workflow.Definition { return r.def }

// Snapshot returns a deep copy of the run's ledger. It is safe to call
// concurrently with the run.
func (r *Run) Snapshot() ledger.Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Snapshot()
}

// Done is closed once the run goroutine has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run goroutine exits or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the run to stop at its next safe point. The step the run
// stops at is failed with "cancelled: <reason>". Cancelling a finished run
// returns an *aegis.InvalidStateError.
func (r *Run) Cancel(reason string) error {
	select {
	case <-r.done:
		return &aegis.InvalidStateError{ClientID: r.client.ID.String(), State: string(r.Snapshot().Status)}
	default:
	}

	r.cancelOnce.Do(func() {
		r.mu.Lock()
		r.cancelReason = reason
		r.mu.Unlock()
		r.stop()
	})
	return nil
}

// Decide applies a human verdict to the step the run is parked on.
// Approval completes the step and resumes the run at the next step;
// rejection fails the step and the run.
//
// It returns an *aegis.NotFoundError if the step is not part of the
// workflow and an *aegis.InvalidStateError if the run is not parked on it,
// including when a verdict has already been applied.
func (r *Run) Decide(_ context.Context, d workflow.Decision) error {
	i, ok := r.def.Index(d.StepID)
	if !ok {
		return &aegis.NotFoundError{Kind: "step", ID: d.StepID}
	}
	s := r.def.Step(i)

	err := r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		if l.AwaitingApproval != d.StepID {
			state := string(l.Steps[i].Status)
			if l.Steps[i].Status == ledger.StepInProgress {
				state = "not awaiting approval"
			}
			return nil, &aegis.InvalidStateError{ClientID: r.client.ID.String(), StepID: d.StepID, State: state}
		}

		if d.Approved {
			meta := map[string]any{"approved": true, "feedback": d.Feedback}
			if err := l.Complete(i, meta, now); err != nil {
				return nil, err
			}
			return []notify.Payload{r.stepUpdate(l, i, "")}, nil
		}

		reason := "rejected: " + d.Feedback
		if err := l.Fail(i, reason, now); err != nil {
			return nil, err
		}
		return r.failurePayloads(l, s, reason), nil
	})
	if err != nil {
		return err
	}

	r.seq.logger.Info("approval decided",
		slog.String("client_id", r.client.ID.String()),
		slog.String("step_id", d.StepID),
		slog.Bool("approved", d.Approved),
	)

	r.decisions <- d.Approved
	return nil
}

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

func (r *Run) execute() {
	defer close(r.done)
	defer r.stop()

	for i := 0; i < r.def.Len(); i++ {
		if i > 0 {
			if err := pacing.Wait(r.ctx, r.seq.pacing.Delay(i)); err != nil {
				r.abort(i)
				return
			}
		}
		if r.ctx.Err() != nil {
			r.abort(i)
			return
		}
		if !r.runStep(i) {
			return
		}
	}

	r.finish()
}

// runStep executes step i and reports whether the run should continue.
func (r *Run) runStep(i int) bool {
	s := r.def.Step(i)

	err := r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		if err := l.Begin(i, now); err != nil {
			return nil, err
		}
		return []notify.Payload{r.stepUpdate(l, i, "")}, nil
	})
	if err != nil {
		r.internalError(i, err)
		return false
	}

	h, err := r.seq.handlers.Resolve(s)
	if err != nil {
		r.fail(i, s, err)
		return false
	}

	// Handlers finish even if the run is cancelled meanwhile.
	out, err := r.seq.chain(h).Execute(context.WithoutCancel(r.ctx), r.client, s)
	if err != nil {
		r.fail(i, s, &aegis.HandlerError{StepID: s.ID, Err: err})
		return false
	}

	switch out.Status {
	case step.StatusCompleted:
		err = r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
			if err := l.Complete(i, out.Metadata, now); err != nil {
				return nil, err
			}
			return []notify.Payload{r.stepUpdate(l, i, "")}, nil
		})
		if err != nil {
			r.internalError(i, err)
			return false
		}
		return true

	case step.StatusPendingApproval:
		if !s.RequiresApproval {
			r.fail(i, s, &aegis.HandlerError{StepID: s.ID, Err: errors.New("approval requested by a step that does not require approval")})
			return false
		}
		return r.park(i, s, out.ApprovalData)

	default:
		r.fail(i, s, &aegis.HandlerError{StepID: s.ID, Err: fmt.Errorf("unknown outcome %q", out.Status)})
		return false
	}
}

// park suspends the run on step i until a decision or cancellation.
func (r *Run) park(i int, s workflow.Step, data map[string]any) bool {
	err := r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		if err := l.Park(i, now); err != nil {
			return nil, err
		}
		return []notify.Payload{notify.ApprovalRequired{
			StepID:       s.ID,
			StepName:     s.Name,
			ApprovalData: data,
		}}, nil
	})
	if err != nil {
		r.internalError(i, err)
		return false
	}

	r.seq.logger.Info("awaiting approval",
		slog.String("client_id", r.client.ID.String()),
		slog.String("step_id", s.ID),
	)

	select {
	case approved := <-r.decisions:
		return approved
	case <-r.ctx.Done():
	}

	// A decision may have landed between the cancel and this point. If it
	// did, honour it; cancellation then applies at the next safe point.
	reason := ""
	decided := false
	err = r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		if l.AwaitingApproval != s.ID {
			decided = true
			return nil, nil
		}
		reason = "cancelled: " + r.cancelReason
		if err := l.Fail(i, reason, now); err != nil {
			return nil, err
		}
		return r.failurePayloads(l, s, reason), nil
	})
	if err != nil {
		r.internalError(i, err)
		return false
	}
	if decided {
		return <-r.decisions
	}

	r.seq.logger.Info("onboarding cancelled",
		slog.String("client_id", r.client.ID.String()),
		slog.String("step_id", s.ID),
		slog.String("reason", reason),
	)
	return false
}

// abort fails step i, which has not started, because the run was cancelled.
func (r *Run) abort(i int) {
	s := r.def.Step(i)
	var reason string
	err := r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		reason = "cancelled: " + r.cancelReason
		if err := l.Fail(i, reason, now); err != nil {
			return nil, err
		}
		return r.failurePayloads(l, s, reason), nil
	})
	if err != nil {
		r.internalError(i, err)
		return
	}

	r.seq.logger.Info("onboarding cancelled",
		slog.String("client_id", r.client.ID.String()),
		slog.String("step_id", s.ID),
		slog.String("reason", reason),
	)
}

// fail marks step i and the run failed because of cause.
func (r *Run) fail(i int, s workflow.Step, cause error) {
	err := r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		if err := l.Fail(i, cause.Error(), now); err != nil {
			return nil, err
		}
		return r.failurePayloads(l, s, cause.Error()), nil
	})
	if err != nil {
		r.internalError(i, err)
		return
	}

	r.seq.logger.Error("onboarding failed",
		slog.String("client_id", r.client.ID.String()),
		slog.String("step_id", s.ID),
		slog.String("error", cause.Error()),
	)
}

func (r *Run) finish() {
	err := r.commit(func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error) {
		if err := l.Finish(now); err != nil {
			return nil, err
		}
		elapsed := now.Sub(l.StartedAt)
		return []notify.Payload{notify.WorkflowComplete{
			ClientName:       r.client.Name,
			ProjectType:      string(r.client.ProjectType),
			TotalSteps:       len(l.Steps),
			CompletedSteps:   l.CompletedCount(),
			ElapsedMs:        elapsed.Milliseconds(),
			DurationMinutes:  elapsed.Minutes(),
			ResourcesCreated: l.Artifacts(),
		}}, nil
	})
	if err != nil {
		r.internalError(r.def.Len()-1, err)
		return
	}

	r.seq.logger.Info("onboarding completed",
		slog.String("client_id", r.client.ID.String()),
	)
}

// internalError logs a ledger transition that was refused. It only fires
// on a bug in the run's own bookkeeping.
func (r *Run) internalError(i int, err error) {
	r.seq.logger.Error("ledger transition rejected",
		slog.String("client_id", r.client.ID.String()),
		slog.String("step_id", r.def.Step(i).ID),
		slog.String("error", err.Error()),
	)
}

// ──────────────────────────────────────────────────
// Ledger commits and emission
// ──────────────────────────────────────────────────

// commit applies change to the ledger under mu, then emits the returned
// payloads and publishes the new snapshot in transition order.
func (r *Run) commit(change func(l *ledger.Ledger, now time.Time) ([]notify.Payload, error)) error {
	r.mu.Lock()
	before := r.ledger.UpdatedAt
	payloads, err := change(r.ledger, r.seq.clock())
	if err != nil {
		r.mu.Unlock()
		return err
	}
	changed := !r.ledger.UpdatedAt.Equal(before) || len(payloads) > 0
	snap := r.ledger.Snapshot()

	r.emitMu.Lock()
	r.mu.Unlock()
	defer r.emitMu.Unlock()

	if changed {
		r.observe(snap)
	}
	for _, p := range payloads {
		r.emit(p)
	}
	return nil
}

func (r *Run) observe(snap ledger.Ledger) {
	ctx := context.WithoutCancel(r.ctx)
	for _, o := range r.seq.observers {
		o(ctx, r.client, snap)
	}
}

func (r *Run) emit(p notify.Payload) {
	msg := notify.NewMessage(r.client.ID, p)
	if err := r.seq.notifier.Notify(context.WithoutCancel(r.ctx), msg); err != nil {
		r.seq.logger.Warn("notification dropped",
			slog.String("client_id", r.client.ID.String()),
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Run) stepUpdate(l *ledger.Ledger, i int, errText string) notify.StepUpdate {
	st := l.Steps[i].Clone()
	return notify.StepUpdate{
		StepID:     st.StepID,
		StepName:   st.Name,
		Status:     st.Status,
		Percentage: l.Percentage,
		Data:       st.Metadata,
		Error:      errText,
	}
}

func (r *Run) failurePayloads(l *ledger.Ledger, s workflow.Step, reason string) []notify.Payload {
	i, _ := r.def.Index(s.ID)
	return []notify.Payload{
		r.stepUpdate(l, i, reason),
		notify.Error{
			Code:    notify.StepFailedCode(s.ID),
			Message: fmt.Sprintf("Step %s failed: %s", s.Name, reason),
			Details: map[string]any{"step_id": s.ID, "error": reason},
		},
	}
}
