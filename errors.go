package aegis

import (
	"errors"
	"fmt"
)

var (
	// Input errors.
	ErrValidation = errors.New("aegis: validation failed")

	// Execution errors.
	ErrUnknownStep = errors.New("aegis: no handler for step")
	ErrHandler     = errors.New("aegis: step handler failed")
	ErrCancelled   = errors.New("aegis: run cancelled")

	// State errors.
	ErrInvalidState = errors.New("aegis: invalid state transition")

	// Lookup errors.
	ErrNotFound      = errors.New("aegis: not found")
	ErrAlreadyExists = errors.New("aegis: already exists")

	// Store errors.
	ErrStoreClosed = errors.New("aegis: store closed")

	// Lifecycle errors.
	ErrShutdown = errors.New("aegis: engine is shutting down")
)

// ValidationError reports a malformed client input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("aegis: invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnknownStepError reports a step whose kind has no registered handler.
type UnknownStepError struct {
	StepID string
	Kind   string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("aegis: no handler for step %q (kind %q)", e.StepID, e.Kind)
}

// Is reports whether target is ErrUnknownStep.
func (e *UnknownStepError) Is(target error) bool { return target == ErrUnknownStep }

// HandlerError wraps a failure raised by a step handler.
type HandlerError struct {
	StepID string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("aegis: step %q failed: %v", e.StepID, e.Err)
}

// Is reports whether target is ErrHandler.
func (e *HandlerError) Is(target error) bool { return target == ErrHandler }

func (e *HandlerError) Unwrap() error { return e.Err }

// InvalidStateError reports an operation attempted in the wrong lifecycle
// state, such as deciding on a step that is not awaiting approval.
type InvalidStateError struct {
	ClientID string
	StepID   string
	State    string
}

func (e *InvalidStateError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("aegis: client %s is %s", e.ClientID, e.State)
	}
	return fmt.Sprintf("aegis: step %q of client %s is %s", e.StepID, e.ClientID, e.State)
}

// Is reports whether target is ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError reports an unknown client or step.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("aegis: %s %q not found", e.Kind, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
