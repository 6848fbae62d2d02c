// Package client defines the onboarding client: who is being onboarded and
// what they asked for. A Client is immutable after creation except for its
// Status, which mirrors the state of its onboarding run.
package client

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/id"
)

// ProjectType is the kind of engagement being onboarded.
type ProjectType string

const (
	ProjectWebDevelopment ProjectType = "web_development"
	ProjectMobileApp      ProjectType = "mobile_app"
	ProjectDesign         ProjectType = "design"
	ProjectMarketing      ProjectType = "marketing"
	ProjectConsulting     ProjectType = "consulting"
	ProjectOther          ProjectType = "other"
)

// Valid reports whether p is one of the known project types.
func (p ProjectType) Valid() bool {
	switch p {
	case ProjectWebDevelopment, ProjectMobileApp, ProjectDesign,
		ProjectMarketing, ProjectConsulting, ProjectOther:
		return true
	}
	return false
}

// Status is the lifecycle state of a client's onboarding.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Client is a single onboarding subject.
type Client struct {
	ID              id.ClientID `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Company         string      `json:"company,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	ProjectType     ProjectType `json:"project_type"`
	ProjectScope    string      `json:"project_scope"`
	BudgetRange     string      `json:"budget_range,omitempty"`
	Timeline        string      `json:"timeline,omitempty"`
	AdditionalNotes string      `json:"additional_notes,omitempty"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Input is the caller-supplied data for a new client.
type Input struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Company         string      `json:"company,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	ProjectType     ProjectType `json:"project_type"`
	ProjectScope    string      `json:"project_scope"`
	BudgetRange     string      `json:"budget_range,omitempty"`
	Timeline        string      `json:"timeline,omitempty"`
	AdditionalNotes string      `json:"additional_notes,omitempty"`
}

// Field limits, in characters.
const (
	MinNameLen  = 2
	MaxNameLen  = 100
	MaxCompany  = 100
	MinScopeLen = 10
	MaxScopeLen = 1000
	MaxNotesLen = 500
)

// Validate checks in and returns the first violation as a
// *aegis.ValidationError.
func (in Input) Validate() error {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < MinNameLen || n > MaxNameLen {
		return &aegis.ValidationError{Field: "name", Reason: "must be between 2 and 100 characters"}
	}

	if in.Email == "" {
		return &aegis.ValidationError{Field: "email", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != strings.TrimSpace(in.Email) {
		return &aegis.ValidationError{Field: "email", Reason: "is not a valid address"}
	}

	if utf8.RuneCountInString(in.Company) > MaxCompany {
		return &aegis.ValidationError{Field: "company", Reason: "must be at most 100 characters"}
	}

	if !in.ProjectType.Valid() {
		return &aegis.ValidationError{Field: "project_type", Reason: "unknown project type " + string(in.ProjectType)}
	}

	scope := strings.TrimSpace(in.ProjectScope)
	if n := utf8.RuneCountInString(scope); n < MinScopeLen || n > MaxScopeLen {
		return &aegis.ValidationError{Field: "project_scope", Reason: "must be between 10 and 1000 characters"}
	}

	if utf8.RuneCountInString(in.AdditionalNotes) > MaxNotesLen {
		return &aegis.ValidationError{Field: "additional_notes", Reason: "must be at most 500 characters"}
	}

	return nil
}

// New validates in and returns a pending Client with a fresh ID.
func New(in Input) (*Client, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Client{
		ID:              id.NewClientID(),
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.TrimSpace(in.Email),
		Company:         strings.TrimSpace(in.Company),
		Phone:           strings.TrimSpace(in.Phone),
		ProjectType:     in.ProjectType,
		ProjectScope:    strings.TrimSpace(in.ProjectScope),
		BudgetRange:     in.BudgetRange,
		Timeline:        in.Timeline,
		AdditionalNotes: in.AdditionalNotes,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// WithStatus returns a copy of c carrying status s.
func (c Client) WithStatus(s Status) *Client {
	c.Status = s
	c.UpdatedAt = time.Now().UTC()
	return &c
}
