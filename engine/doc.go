// Package engine wires the aegis subsystems together and provides the
// control surface of the onboarding service: start, status, decide,
// cancel, delete and list.
//
// The engine package sits above the sequencer, store and notification
// packages and below the application layer (the HTTP API and the binary).
//
// # Building an Engine
//
//	eng, err := engine.New(simulate.Registry(),
//	    engine.WithConfig(cfg),
//	    engine.WithStore(redisstore.New(rdb)),
//	    engine.WithNotifier("stream", broker),
//	    engine.WithLogger(logger),
//	)
//
// New validates that every step kind of the workflow has a handler, so a
// misconfigured engine fails before any client starts.
//
// # Driving Onboardings
//
//	c, snap, err := eng.Start(ctx, client.Input{...})
//	snap, err = eng.Status(ctx, c.ID)
//	err = eng.Decide(ctx, c.ID, workflow.Decision{StepID: "human_approval", Approved: true})
//
// # Process Registry
//
// [Registry] keeps a handle for every live run and persists each ledger
// transition to the store. Terminal ledgers expire after Config.LedgerTTL
// and are evicted by a reaper every Config.SweepInterval.
//
// # Options
//
//   - [WithConfig]: replace the configuration
//   - [WithStore]: set the record store (default in-memory)
//   - [WithNotifier]: add a notification port
//   - [WithDefinition]: replace the onboarding workflow
//   - [WithMiddleware]: add handler middleware
//   - [WithPacing]: override inter-step pacing
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
