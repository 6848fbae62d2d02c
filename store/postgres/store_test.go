//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
	"github.com/xraph/aegis/store"
	"github.com/xraph/aegis/store/postgres"
	"github.com/xraph/aegis/workflow"
)

// setupTestStore creates a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("aegis_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	return s
}

func newRecord(status client.Status, created time.Time) *store.Record {
	c := client.Client{
		ID:          id.NewClientID(),
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		ProjectType: client.ProjectWebDevelopment,
		Status:      status,
		CreatedAt:   created.UTC(),
	}
	l := ledger.New(c.ID, workflow.DefaultOnboarding(), created.UTC())
	return &store.Record{Client: c, Ledger: *l}
}

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestPostgres_PutGetDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := newRecord(client.StatusInProgress, time.Now())
	now := time.Now().UTC()
	if err := r.Ledger.Begin(0, now); err != nil {
		t.Fatal(err)
	}
	if err := r.Ledger.Complete(0, map[string]any{"folder_url": "https://drive.example/f"}, now); err != nil {
		t.Fatal(err)
	}

	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Upsert replaces the row.
	r.Client.Status = client.StatusFailed
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put again: %v", err)
	}

	got, err := s.Get(ctx, r.Client.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Client.ID.String() != r.Client.ID.String() {
		t.Errorf("client id = %s, want %s", got.Client.ID, r.Client.ID)
	}
	if got.Client.Status != client.StatusFailed {
		t.Errorf("status = %s, want failed", got.Client.Status)
	}
	if got.Ledger.Steps[0].Status != ledger.StepCompleted {
		t.Errorf("step 0 = %s, want completed", got.Ledger.Steps[0].Status)
	}
	if got.Ledger.Steps[0].Metadata["folder_url"] != "https://drive.example/f" {
		t.Errorf("metadata = %v", got.Ledger.Steps[0].Metadata)
	}

	if err := s.Delete(ctx, r.Client.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, r.Client.ID); !errors.Is(err, aegis.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, r.Client.ID); !errors.Is(err, aegis.ErrNotFound) {
		t.Errorf("Delete twice = %v, want ErrNotFound", err)
	}
}

func TestPostgres_ListFiltersAndPages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now()

	r1 := newRecord(client.StatusInProgress, base)
	r2 := newRecord(client.StatusInProgress, base.Add(time.Second))
	r3 := newRecord(client.StatusCompleted, base.Add(2*time.Second))
	for _, r := range []*store.Record{r1, r2, r3} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, total, err := s.List(ctx, store.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("total=%d len=%d, want 3", total, len(all))
	}
	if all[0].Client.ID.String() != r3.Client.ID.String() {
		t.Errorf("first = %s, want newest", all[0].Client.ID)
	}

	running, total, _ := s.List(ctx, store.ListOpts{Status: client.StatusInProgress})
	if total != 2 || running[0].Client.ID.String() != r2.Client.ID.String() {
		t.Errorf("in_progress total = %d", total)
	}

	page, total, _ := s.List(ctx, store.ListOpts{Limit: 1, Offset: 1})
	if total != 3 || len(page) != 1 || page[0].Client.ID.String() != r2.Client.ID.String() {
		t.Errorf("page len=%d total=%d", len(page), total)
	}

	past, total, _ := s.List(ctx, store.ListOpts{Offset: 10})
	if total != 3 || len(past) != 0 {
		t.Errorf("offset past end: len=%d total=%d", len(past), total)
	}
}

func TestPostgres_ExpiryAndSweep(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	live := newRecord(client.StatusInProgress, time.Now())
	done := newRecord(client.StatusCompleted, time.Now())
	exp := time.Now().Add(-time.Second)
	done.ExpiresAt = &exp
	for _, r := range []*store.Record{live, done} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Get(ctx, done.Client.ID); !errors.Is(err, aegis.ErrNotFound) {
		t.Errorf("Get expired = %v, want ErrNotFound", err)
	}
	if _, total, _ := s.List(ctx, store.ListOpts{}); total != 1 {
		t.Errorf("List total = %d, want 1", total)
	}

	n, err := s.Sweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, err := s.Get(ctx, live.Client.ID); err != nil {
		t.Errorf("live record gone: %v", err)
	}
}

func TestPostgres_Closed(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, aegis.ErrStoreClosed) {
		t.Errorf("Ping after Close = %v, want ErrStoreClosed", err)
	}
	if err := s.Put(context.Background(), newRecord(client.StatusPending, time.Now())); !errors.Is(err, aegis.ErrStoreClosed) {
		t.Errorf("Put after Close = %v, want ErrStoreClosed", err)
	}
}
