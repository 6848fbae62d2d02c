// Package sequencer executes an onboarding workflow for one client at a
// time.
//
// Each call to Start spawns a Run: a goroutine that walks the definition in
// order, invokes the handler registered for each step's kind, records the
// outcome in the run's ledger and emits a notification for every ledger
// transition. A step that asks for approval parks the run until Decide is
// called with a verdict; approval resumes the run at the next step,
// rejection fails it.
//
//	seq := sequencer.New(handlers,
//	    sequencer.WithNotifier(broker),
//	    sequencer.WithPacing(pacing.NewConstant(2*time.Second)),
//	)
//	run, _ := seq.Start(ctx, c, workflow.DefaultOnboarding())
//	...
//	err := run.Decide(ctx, workflow.Decision{StepID: "human_approval", Approved: true})
//
// Cancellation is honoured only at safe points: before a step starts,
// during the pacing delay, and at the approval gate. A step whose handler
// is already running finishes first.
package sequencer
