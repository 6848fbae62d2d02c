package client_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
)

func validInput() client.Input {
	return client.Input{
		Name:         "Ada Lovelace",
		Email:        "ada@example.com",
		Company:      "Analytical Engines",
		ProjectType:  client.ProjectWebDevelopment,
		ProjectScope: "Marketing site with a booking flow",
	}
}

func TestNew(t *testing.T) {
	c, err := client.New(validInput())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.ID.Prefix() != id.PrefixClient {
		t.Errorf("prefix = %q", c.ID.Prefix())
	}
	if c.Status != client.StatusPending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Errorf("timestamps not initialised: %v / %v", c.CreatedAt, c.UpdatedAt)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*client.Input)
		field string
	}{
		{"short name", func(in *client.Input) { in.Name = " A " }, "name"},
		{"long name", func(in *client.Input) { in.Name = strings.Repeat("a", 101) }, "name"},
		{"missing email", func(in *client.Input) { in.Email = "" }, "email"},
		{"bad email", func(in *client.Input) { in.Email = "not-an-email" }, "email"},
		{"display-name email", func(in *client.Input) { in.Email = "Ada <ada@example.com>" }, "email"},
		{"long company", func(in *client.Input) { in.Company = strings.Repeat("c", 101) }, "company"},
		{"unknown project", func(in *client.Input) { in.ProjectType = "gardening" }, "project_type"},
		{"short scope", func(in *client.Input) { in.ProjectScope = "too short" }, "project_scope"},
		{"long scope", func(in *client.Input) { in.ProjectScope = strings.Repeat("s", 1001) }, "project_scope"},
		{"long notes", func(in *client.Input) { in.AdditionalNotes = strings.Repeat("n", 501) }, "additional_notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)

			err := in.Validate()
			if !errors.Is(err, aegis.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *aegis.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("field = %+v, want %q", ve, tt.field)
			}
		})
	}
}

func TestValidateAcceptsBoundaries(t *testing.T) {
	in := validInput()
	in.Name = "Al"
	in.ProjectScope = strings.Repeat("s", 10)
	in.AdditionalNotes = strings.Repeat("n", 500)
	if err := in.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWithStatus(t *testing.T) {
	c, err := client.New(validInput())
	if err != nil {
		t.Fatal(err)
	}

	done := c.WithStatus(client.StatusCompleted)
	if c.Status != client.StatusPending {
		t.Error("original client mutated")
	}
	if done.Status != client.StatusCompleted || !done.Status.Terminal() {
		t.Errorf("status = %q", done.Status)
	}
	if done.ID.String() != c.ID.String() {
		t.Error("identity changed")
	}
}
