// Package aegis provides a client onboarding engine for Go. It runs a fixed,
// ordered sequence of onboarding steps per client, pauses at human-approval
// checkpoints, tracks fine-grained progress, and pushes progress events to
// observers.
//
// The root package holds the shared vocabulary: configuration, identity
// aliases and the error taxonomy. The moving parts live in subpackages:
//
//   - workflow:  step definitions and the default onboarding
//   - ledger:    the per-client progress record and its invariants
//   - step:      the handler contract and the kind-keyed handler registry
//   - sequencer: the per-client run and its approval gate
//   - notify:    notification events and delivery ports
//   - store:     keyed record persistence (memory, Redis, PostgreSQL)
//   - engine:    the process registry and control surface
//
// # Quick Start
//
//	handlers := simulate.Registry()
//	eng, err := engine.New(handlers,
//	    engine.WithStore(memory.New()),
//	    engine.WithNotifier("stream", broker),
//	)
//	c, snap, err := eng.Start(ctx, client.Input{Name: "Ada", ...})
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package aegis
