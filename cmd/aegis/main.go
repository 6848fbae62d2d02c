// Command aegis runs the client onboarding service and watches onboarding
// runs from the terminal.
//
// Usage:
//
//	aegis serve --addr :8080 --auto-approve
//	aegis watch client_01h2xcejqtf2nbrexx3vqjhp41 --server ws://localhost:8080
//
// Every flag can also be set in a YAML file (--config) or through an
// AEGIS_ environment variable, e.g. AEGIS_ENGINE_PACING_DELAY=500ms.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
