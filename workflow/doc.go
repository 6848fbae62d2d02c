// Package workflow defines onboarding workflow definitions: an ordered,
// immutable list of step descriptors, each bound to a closed step kind.
//
// A Definition says nothing about how a step is carried out. The step
// package maps every StepKind to a handler, and the sequencer package walks
// a Definition for one client at a time.
//
//	def := workflow.DefaultOnboarding()
//	for _, s := range def.Steps() {
//	    fmt.Println(s.ID, s.Kind, s.RequiresApproval)
//	}
package workflow
