package simulate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/simulate"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

func testClient() *client.Client {
	return &client.Client{
		ID:           id.NewClientID(),
		Name:         "Ada Lovelace",
		Email:        "ada@example.com",
		ProjectType:  client.ProjectWebDevelopment,
		ProjectScope: "Analytical engine companion site",
	}
}

func run(t *testing.T, r *step.Registry, c *client.Client, s workflow.Step) step.Outcome {
	t.Helper()
	h, err := r.Resolve(s)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", s.ID, err)
	}
	out, err := h.Execute(context.Background(), c, s)
	if err != nil {
		t.Fatalf("Execute(%s): %v", s.ID, err)
	}
	return out
}

func TestRegistry_CoversDefaultOnboarding(t *testing.T) {
	r := simulate.Registry(simulate.WithLatencyScale(0))
	if err := r.Validate(workflow.DefaultOnboarding()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestHandlers_Metadata(t *testing.T) {
	r := simulate.Registry(simulate.WithLatencyScale(0), simulate.WithOrganization("acme"))
	c := testClient()

	wantKeys := map[string][]string{
		workflow.StepCreateDriveFolder:  {"folder_id", "folder_name", "folder_url"},
		workflow.StepDraftContract:      {"document_id", "document_url"},
		workflow.StepCreateChannel:      {"channel_id", "invite_url"},
		workflow.StepSetupRepository:    {"repository_url", "default_branch"},
		workflow.StepCreateProjectBoard: {"board_id", "board_url"},
		workflow.StepSendWelcomeEmail:   {"recipient", "meeting_scheduled"},
		workflow.StepSetupBilling:       {"invoice_id", "invoice_url", "amount"},
	}

	for _, s := range workflow.DefaultOnboarding().Steps() {
		keys, ok := wantKeys[s.ID]
		if !ok {
			continue
		}
		out := run(t, r, c, s)
		if out.Status != step.StatusCompleted {
			t.Errorf("%s: status = %s", s.ID, out.Status)
		}
		for _, k := range keys {
			if _, ok := out.Metadata[k]; !ok {
				t.Errorf("%s: missing %q in %v", s.ID, k, out.Metadata)
			}
		}
	}

	def := workflow.DefaultOnboarding()
	i, _ := def.Index(workflow.StepCreateDriveFolder)
	folder := run(t, r, c, def.Step(i))
	if folder.Metadata["folder_name"] != "Ada Lovelace - Web Development Project" {
		t.Errorf("folder_name = %v", folder.Metadata["folder_name"])
	}

	i, _ = def.Index(workflow.StepSetupRepository)
	repo := run(t, r, c, def.Step(i))
	if repo.Metadata["repository_url"] != "https://github.com/acme/ada-lovelace-project" {
		t.Errorf("repository_url = %v", repo.Metadata["repository_url"])
	}

	i, _ = def.Index(workflow.StepSetupBilling)
	if amt := run(t, r, c, def.Step(i)).Metadata["amount"]; amt != "TBD" {
		t.Errorf("amount = %v, want TBD", amt)
	}
}

func TestHumanApproval_PointsAtDraftedContract(t *testing.T) {
	r := simulate.Registry(simulate.WithLatencyScale(0))
	c := testClient()
	def := workflow.DefaultOnboarding()

	i, _ := def.Index(workflow.StepDraftContract)
	draft := run(t, r, c, def.Step(i))

	i, _ = def.Index(workflow.StepHumanApproval)
	approval := run(t, r, c, def.Step(i))

	if approval.Status != step.StatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval", approval.Status)
	}
	if approval.ApprovalData["contract_url"] != draft.Metadata["document_url"] {
		t.Errorf("contract_url %v != document_url %v",
			approval.ApprovalData["contract_url"], draft.Metadata["document_url"])
	}
	if !strings.Contains(approval.ApprovalData["approval_message"].(string), c.Name) {
		t.Errorf("approval_message = %v", approval.ApprovalData["approval_message"])
	}
}

func TestHandlers_HonourContext(t *testing.T) {
	r := simulate.Registry()
	def := workflow.DefaultOnboarding()
	h, _ := r.Resolve(def.Step(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := h.Execute(ctx, testClient(), def.Step(0))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("handler ignored cancellation")
	}
}

type fakeDecider struct {
	mu    sync.Mutex
	calls []workflow.Decision
	done  chan struct{}
}

func (f *fakeDecider) Decide(_ context.Context, _ id.ClientID, d workflow.Decision) error {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()
	close(f.done)
	return nil
}

func TestAutoApprover(t *testing.T) {
	d := &fakeDecider{done: make(chan struct{})}
	a := simulate.NewAutoApprover(d, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cID := id.NewClientID()

	// Other notifications are ignored.
	_ = a.Notify(context.Background(), notify.NewMessage(cID, notify.StepUpdate{StepID: "x", Status: ledger.StepCompleted}))

	if err := a.Notify(context.Background(), notify.NewMessage(cID, notify.ApprovalRequired{StepID: workflow.StepHumanApproval})); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no decision made")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) != 1 || !d.calls[0].Approved || d.calls[0].StepID != workflow.StepHumanApproval {
		t.Errorf("calls = %+v", d.calls)
	}
}
