// Package simulate provides step handlers that mimic the external services
// of the onboarding workflow (Drive, Docs, Slack, GitHub, Notion, mail and
// Stripe) so the engine runs end to end without real accounts.
//
// Every handler waits a per-kind latency, honours its context and returns
// the metadata a real integration would record.
package simulate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/pacing"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// DefaultLatency is the simulated duration of each step kind.
var DefaultLatency = map[workflow.StepKind]time.Duration{
	workflow.KindDriveFolder:          3 * time.Second,
	workflow.KindContractDraft:        4 * time.Second,
	workflow.KindCommunicationChannel: 3 * time.Second,
	workflow.KindRepository:           3 * time.Second,
	workflow.KindProjectBoard:         4 * time.Second,
	workflow.KindWelcomeEmail:         3 * time.Second,
	workflow.KindBilling:              3 * time.Second,
}

// Option configures the simulated handlers.
type Option func(*options)

type options struct {
	scale float64
	org   string
	now   func() time.Time
}

// WithLatencyScale multiplies every simulated latency by f. Zero makes the
// handlers return immediately.
func WithLatencyScale(f float64) Option {
	return func(o *options) { o.scale = f }
}

// WithOrganization sets the GitHub organization used in repository URLs.
func WithOrganization(org string) Option {
	return func(o *options) { o.org = org }
}

// WithClock overrides the time source used for scheduled meetings.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Registry returns a step registry with a simulated handler for every
// step kind.
func Registry(opts ...Option) *step.Registry {
	o := options{scale: 1, org: "your-org", now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	h := &handlers{opts: o}
	r := step.NewRegistry()
	r.MustRegister(workflow.KindDriveFolder, h.timed(workflow.KindDriveFolder, h.driveFolder))
	r.MustRegister(workflow.KindContractDraft, h.timed(workflow.KindContractDraft, h.contractDraft))
	r.MustRegister(workflow.KindHumanApproval, step.HandlerFunc(h.humanApproval))
	r.MustRegister(workflow.KindCommunicationChannel, h.timed(workflow.KindCommunicationChannel, h.channel))
	r.MustRegister(workflow.KindRepository, h.timed(workflow.KindRepository, h.repository))
	r.MustRegister(workflow.KindProjectBoard, h.timed(workflow.KindProjectBoard, h.projectBoard))
	r.MustRegister(workflow.KindWelcomeEmail, h.timed(workflow.KindWelcomeEmail, h.welcomeEmail))
	r.MustRegister(workflow.KindBilling, h.timed(workflow.KindBilling, h.billing))
	return r
}

type handlers struct {
	opts options
}

// timed wraps fn so it first waits the simulated latency of kind.
func (h *handlers) timed(kind workflow.StepKind, fn func(*client.Client) map[string]any) step.Handler {
	latency := time.Duration(float64(DefaultLatency[kind]) * h.opts.scale)
	return step.HandlerFunc(func(ctx context.Context, c *client.Client, _ workflow.Step) (step.Outcome, error) {
		if err := pacing.Wait(ctx, latency); err != nil {
			return step.Outcome{}, err
		}
		return step.Completed(fn(c)), nil
	})
}

// ──────────────────────────────────────────────────
// Step actions
// ──────────────────────────────────────────────────

func (h *handlers) driveFolder(c *client.Client) map[string]any {
	folderID := "drive_folder_" + shortID()
	return map[string]any{
		"folder_id":   folderID,
		"folder_name": fmt.Sprintf("%s - %s Project", c.Name, titleCase(string(c.ProjectType))),
		"folder_url":  "https://drive.google.com/drive/folders/" + folderID,
		"permissions": "client_read_write",
	}
}

func (h *handlers) contractDraft(c *client.Client) map[string]any {
	docID := contractDocID(c)
	return map[string]any{
		"document_id":    docID,
		"document_title": "Service Agreement - " + c.Name,
		"document_url":   "https://docs.google.com/document/d/" + docID,
		"template_used":  "standard_service_agreement",
	}
}

func (h *handlers) humanApproval(_ context.Context, c *client.Client, _ workflow.Step) (step.Outcome, error) {
	return step.PendingApproval(map[string]any{
		"contract_url":     "https://docs.google.com/document/d/" + contractDocID(c),
		"client_name":      c.Name,
		"project_scope":    c.ProjectScope,
		"approval_message": fmt.Sprintf("Please review the contract for %s before proceeding.", c.Name),
	}), nil
}

func (h *handlers) channel(c *client.Client) map[string]any {
	channelID := "C" + strings.ToUpper(shortID())
	return map[string]any{
		"channel_id":    channelID,
		"channel_name":  "project-" + slug(c.Name),
		"platform":      "slack",
		"invite_url":    "https://slack.com/channels/" + channelID,
		"members_added": []string{"client", "project_manager"},
	}
}

func (h *handlers) repository(c *client.Client) map[string]any {
	name := slug(c.Name) + "-project"
	return map[string]any{
		"repository_url":      fmt.Sprintf("https://github.com/%s/%s", h.opts.org, name),
		"repository_name":     name,
		"default_branch":      "main",
		"collaborators_added": []string{c.Email},
		"initial_structure":   true,
	}
}

func (h *handlers) projectBoard(c *client.Client) map[string]any {
	boardID := "notion_" + shortID()
	return map[string]any{
		"board_id":         boardID,
		"board_title":      c.Name + " - Project Board",
		"board_url":        "https://notion.so/" + boardID,
		"template":         "project_management",
		"sections_created": []string{"Backlog", "In Progress", "Review", "Completed"},
	}
}

func (h *handlers) welcomeEmail(c *client.Client) map[string]any {
	return map[string]any{
		"email_sent":        true,
		"recipient":         c.Email,
		"subject":           fmt.Sprintf("Welcome to your project, %s!", c.Name),
		"calendar_invite":   true,
		"meeting_scheduled": kickoff(h.opts.now()).Format(time.RFC3339),
		"meeting_link":      "https://meet.google.com/" + shortID(),
	}
}

func (h *handlers) billing(c *client.Client) map[string]any {
	invoiceID := "in_" + shortID()
	amount := c.BudgetRange
	if amount == "" {
		amount = "TBD"
	}
	return map[string]any{
		"stripe_customer_id": "cus_" + shortID(),
		"invoice_id":         invoiceID,
		"invoice_url":        "https://dashboard.stripe.com/invoices/" + invoiceID,
		"amount":             amount,
		"payment_terms":      "Net 30",
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// contractDocID derives the contract document ID from the client ID so the
// drafted document and the approval request point at the same URL.
func contractDocID(c *client.Client) string {
	s := c.ID.String()
	if len(s) > 8 {
		s = s[len(s)-8:]
	}
	return "doc_" + s
}

// kickoff returns 10:00 UTC on the third day after now.
func kickoff(now time.Time) time.Time {
	d := now.UTC().AddDate(0, 0, 3)
	return time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, time.UTC)
}

func shortID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
