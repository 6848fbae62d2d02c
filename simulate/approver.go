package simulate

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/workflow"
)

// Decider applies approval decisions. *engine.Engine satisfies it.
type Decider interface {
	Decide(ctx context.Context, clientID id.ClientID, d workflow.Decision) error
}

// Compile-time interface check.
var _ notify.Port = (*AutoApprover)(nil)

// AutoApprover is a notification port that approves every approval request
// after a delay, standing in for the human reviewer.
type AutoApprover struct {
	decider Decider
	delay   time.Duration
	logger  *slog.Logger
}

// NewAutoApprover creates an AutoApprover that approves through d.
func NewAutoApprover(d Decider, delay time.Duration, logger *slog.Logger) *AutoApprover {
	return &AutoApprover{decider: d, delay: delay, logger: logger}
}

// Notify implements notify.Port. Approval happens asynchronously so the
// emitting run is never blocked.
func (a *AutoApprover) Notify(ctx context.Context, msg notify.Message) error {
	req, ok := msg.Payload.(notify.ApprovalRequired)
	if !ok {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		time.Sleep(a.delay)
		err := a.decider.Decide(ctx, msg.ClientID, workflow.Decision{
			StepID:   req.StepID,
			Approved: true,
			Feedback: "Auto-approved for simulation",
		})
		if err != nil {
			a.logger.Warn("auto-approval failed",
				slog.String("client_id", msg.ClientID.String()),
				slog.String("step_id", req.StepID),
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.Info("auto-approved",
			slog.String("client_id", msg.ClientID.String()),
			slog.String("step_id", req.StepID),
		)
	}()
	return nil
}
