package middleware_test

import (
	"io"
	"log/slog"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient() *client.Client {
	return &client.Client{ID: id.NewClientID(), Name: "Ada", Email: "ada@example.com"}
}

func newTestStep() workflow.Step {
	return workflow.Step{
		ID:               "draft_contract",
		Kind:             workflow.KindContractDraft,
		Name:             "Draft Contract",
		RequiresApproval: true,
	}
}
