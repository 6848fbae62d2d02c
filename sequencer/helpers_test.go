package sequencer_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/sequencer"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient() *client.Client {
	return &client.Client{
		ID:          id.NewClientID(),
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		ProjectType: client.ProjectConsulting,
	}
}

// threeSteps returns a -> b -> c where b may ask for approval.
func threeSteps() *workflow.Definition {
	return workflow.MustNew("three",
		workflow.Step{ID: "a", Name: "A", Kind: workflow.KindDriveFolder},
		workflow.Step{ID: "b", Name: "B", Kind: workflow.KindHumanApproval, RequiresApproval: true},
		workflow.Step{ID: "c", Name: "C", Kind: workflow.KindBilling},
	)
}

// script records handler invocations per step ID.
type script struct {
	mu    sync.Mutex
	calls []string
}

func (s *script) handler(fn func(workflow.Step) (step.Outcome, error)) step.Handler {
	return step.HandlerFunc(func(_ context.Context, _ *client.Client, st workflow.Step) (step.Outcome, error) {
		s.mu.Lock()
		s.calls = append(s.calls, st.ID)
		s.mu.Unlock()
		return fn(st)
	})
}

func (s *script) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func completes(meta map[string]any) func(workflow.Step) (step.Outcome, error) {
	return func(workflow.Step) (step.Outcome, error) { return step.Completed(meta), nil }
}

func parks(workflow.Step) (step.Outcome, error) {
	return step.PendingApproval(map[string]any{"contract_url": "https://docs.example/contract"}), nil
}

type harness struct {
	seq      *sequencer.Sequencer
	handlers *step.Registry
	rec      *notify.Recorder
	script   *script
}

func newHarness(t *testing.T, b func(workflow.Step) (step.Outcome, error), opts ...sequencer.Option) *harness {
	t.Helper()
	h := &harness{
		handlers: step.NewRegistry(),
		rec:      notify.NewRecorder(),
		script:   &script{},
	}
	h.handlers.MustRegister(workflow.KindDriveFolder, h.script.handler(completes(map[string]any{"folder_url": "https://drive.example/f"})))
	h.handlers.MustRegister(workflow.KindHumanApproval, h.script.handler(b))
	h.handlers.MustRegister(workflow.KindBilling, h.script.handler(completes(map[string]any{"invoice_id": "inv_1"})))

	base := []sequencer.Option{
		sequencer.WithNotifier(h.rec),
		sequencer.WithLogger(testLogger()),
	}
	h.seq = sequencer.New(h.handlers, append(base, opts...)...)
	return h
}

func (h *harness) start(t *testing.T) *sequencer.Run {
	t.Helper()
	run, err := h.seq.Start(context.Background(), testClient(), threeSteps())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return run
}

func waitDone(t *testing.T, run *sequencer.Run) ledger.Ledger {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}
	return run.Snapshot()
}

// waitParked waits for the approval-required notification, which is
// emitted after the ledger transition, then returns the parked snapshot.
func (h *harness) waitParked(t *testing.T, run *sequencer.Run) ledger.Ledger {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok := h.rec.Wait(ctx, func(msgs []notify.Message) bool {
		return countType(msgs, notify.TypeApprovalRequired) > 0
	})
	if !ok {
		t.Fatal("run never parked")
	}
	return run.Snapshot()
}

func countType(msgs []notify.Message, typ notify.Type) int {
	n := 0
	for _, m := range msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func statuses(l ledger.Ledger) []ledger.StepStatus {
	out := make([]ledger.StepStatus, len(l.Steps))
	for i, st := range l.Steps {
		out[i] = st.Status
	}
	return out
}
