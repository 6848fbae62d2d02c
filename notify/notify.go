// Package notify defines the notifications an onboarding run emits and the
// Port they are delivered through.
//
// Delivery is one-way, at-most-once and best-effort: a Port reports failure
// by returning an error, the caller logs it and moves on. Nothing is
// retried or queued.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
)

// Type identifies the notification variant.
type Type string

const (
	TypeStepUpdate       Type = "step_update"
	TypeApprovalRequired Type = "approval_required"
	TypeWorkflowComplete Type = "onboarding_complete"
	TypeError            Type = "error"
)

// Valid reports whether t is one of the known notification types.
func (t Type) Valid() bool {
	switch t {
	case TypeStepUpdate, TypeApprovalRequired, TypeWorkflowComplete, TypeError:
		return true
	}
	return false
}

// Payload is one of StepUpdate, ApprovalRequired, WorkflowComplete or Error.
type Payload interface {
	Type() Type
}

// StepUpdate reports a step entering or leaving in_progress.
type StepUpdate struct {
	StepID     string            `json:"step_id" msgpack:"step_id"`
	StepName   string            `json:"step_name,omitempty" msgpack:"step_name,omitempty"`
	Status     ledger.StepStatus `json:"step_status" msgpack:"step_status"`
	Percentage float64           `json:"progress_percentage" msgpack:"progress_percentage"`
	Data       map[string]any    `json:"data,omitempty" msgpack:"data,omitempty"`
	Error      string            `json:"error,omitempty" msgpack:"error,omitempty"`
}

// ApprovalRequired reports a run parked for a human decision.
type ApprovalRequired struct {
	StepID       string         `json:"step_id" msgpack:"step_id"`
	StepName     string         `json:"step_name,omitempty" msgpack:"step_name,omitempty"`
	ApprovalData map[string]any `json:"approval_data,omitempty" msgpack:"approval_data,omitempty"`
}

// WorkflowComplete summarises a finished run.
type WorkflowComplete struct {
	ClientName       string            `json:"client_name" msgpack:"client_name"`
	ProjectType      string            `json:"project_type" msgpack:"project_type"`
	TotalSteps       int               `json:"total_steps" msgpack:"total_steps"`
	CompletedSteps   int               `json:"completed_steps" msgpack:"completed_steps"`
	ElapsedMs        int64             `json:"elapsed_ms" msgpack:"elapsed_ms"`
	DurationMinutes  float64           `json:"duration_minutes" msgpack:"duration_minutes"`
	ResourcesCreated map[string]string `json:"resources_created,omitempty" msgpack:"resources_created,omitempty"`
}

// Error reports a failed run.
type Error struct {
	Code    string         `json:"error_code" msgpack:"error_code"`
	Message string         `json:"message" msgpack:"message"`
	Details map[string]any `json:"error_details,omitempty" msgpack:"error_details,omitempty"`
}

func (StepUpdate) Type() Type       { return TypeStepUpdate }
func (ApprovalRequired) Type() Type { return TypeApprovalRequired }
func (WorkflowComplete) Type() Type { return TypeWorkflowComplete }
func (Error) Type() Type            { return TypeError }

// StepFailedCode returns the error code used when stepID fails.
func StepFailedCode(stepID string) string {
	return "STEP_" + strings.ToUpper(stepID) + "_FAILED"
}

// ──────────────────────────────────────────────────
// Message envelope
// ──────────────────────────────────────────────────

// Message is the envelope delivered to ports.
type Message struct {
	ID        id.ID       `json:"id"`
	Type      Type        `json:"type"`
	ClientID  id.ClientID `json:"client_id"`
	Payload   Payload     `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage wraps p in an envelope addressed to clientID.
func NewMessage(clientID id.ClientID, p Payload) Message {
	return Message{
		ID:        id.NewEventID(),
		Type:      p.Type(),
		ClientID:  clientID,
		Payload:   p,
		Timestamp: time.Now().UTC(),
	}
}

// UnmarshalJSON decodes the payload into the variant named by Type.
func (m *Message) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID        id.ID           `json:"id"`
		Type      Type            `json:"type"`
		ClientID  id.ClientID     `json:"client_id"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p, err := decodePayload(aux.Type, aux.Payload)
	if err != nil {
		return err
	}

	*m = Message{
		ID:        aux.ID,
		Type:      aux.Type,
		ClientID:  aux.ClientID,
		Payload:   p,
		Timestamp: aux.Timestamp,
	}
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeStepUpdate:
		return decodeAs[StepUpdate](raw)
	case TypeApprovalRequired:
		return decodeAs[ApprovalRequired](raw)
	case TypeWorkflowComplete:
		return decodeAs[WorkflowComplete](raw)
	case TypeError:
		return decodeAs[Error](raw)
	default:
		return nil, fmt.Errorf("notify: unknown message type %q", t)
	}
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("notify: decode %s payload: %w", v.Type(), err)
		}
	}
	return v, nil
}

// ──────────────────────────────────────────────────
// Ports
// ──────────────────────────────────────────────────

// Port delivers notifications to observers. Notify must not block for
// long; a slow observer is the Port's problem, not the caller's.
type Port interface {
	Notify(ctx context.Context, msg Message) error
}

// PortFunc adapts a function to Port.
type PortFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f PortFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Discard is a Port that drops every message.
var Discard Port = PortFunc(func(context.Context, Message) error { return nil })
