// Package step defines the contract between the sequencer and the code that
// actually performs an onboarding step, and a registry that maps every
// workflow.StepKind to its handler.
package step

import (
	"context"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/workflow"
)

// Status is the result class of a successful handler call.
type Status string

const (
	// StatusCompleted means the step finished and the run may advance.
	StatusCompleted Status = "completed"
	// StatusPendingApproval means the step needs a human decision before
	// the run may advance. Only valid on steps that require approval.
	StatusPendingApproval Status = "pending_approval"
)

// Outcome is what a handler reports back for a step.
type Outcome struct {
	Status Status

	// Metadata is recorded on the step when it completes.
	Metadata map[string]any

	// ApprovalData is sent to approvers when Status is
	// StatusPendingApproval.
	ApprovalData map[string]any
}

// Completed returns a completed outcome carrying meta.
func Completed(meta map[string]any) Outcome {
	return Outcome{Status: StatusCompleted, Metadata: meta}
}

// PendingApproval returns an outcome that parks the run for a decision.
func PendingApproval(data map[string]any) Outcome {
	return Outcome{Status: StatusPendingApproval, ApprovalData: data}
}

// Handler performs one step for one client. Implementations must honour
// ctx cancellation. A returned error fails the step and the run.
type Handler interface {
	Execute(ctx context.Context, c *client.Client, s workflow.Step) (Outcome, error)
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, c *client.Client, s workflow.Step) (Outcome, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, c *client.Client, s workflow.Step) (Outcome, error) {
	return f(ctx, c, s)
}
