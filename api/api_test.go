package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/api"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/engine"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/simulate"
	"github.com/xraph/aegis/workflow"
)

func init() { gin.SetMode(gin.TestMode) }

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	eng *engine.Engine
	h   http.Handler
}

func setup(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()

	cfg := aegis.DefaultConfig()
	cfg.PacingDelay = 0
	cfg.SweepInterval = 0

	eng, err := engine.New(simulate.Registry(simulate.WithLatencyScale(0)),
		engine.WithConfig(cfg),
		engine.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})

	opts = append([]api.Option{api.WithLogger(testLogger())}, opts...)
	return &fixture{eng: eng, h: api.New(eng, opts...).Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	w, body := f.do(t, http.MethodPost, "/api/v1/onboarding/start", validInput())
	if w.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body = %s", w.Code, w.Body)
	}
	cid, _ := body["client_id"].(string)
	if cid == "" {
		t.Fatalf("start: no client_id in %v", body)
	}
	return cid
}

// waitStatus polls GET /status until cond holds.
func (f *fixture) waitStatus(t *testing.T, cid string, cond func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		w, body := f.do(t, http.MethodGet, "/api/v1/onboarding/status/"+cid, nil)
		if w.Code == http.StatusOK && cond(body) {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never matched; last = %v", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitDone waits for the run goroutine of cid to exit.
func (f *fixture) waitDone(t *testing.T, cid string) {
	t.Helper()
	clientID, err := id.ParseClientID(cid)
	if err != nil {
		t.Fatalf("ParseClientID: %v", err)
	}
	run, ok := f.eng.Registry().Run(clientID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}
}

func awaiting(body map[string]any) bool {
	return body["awaiting_approval"] == workflow.StepHumanApproval
}

func statusIs(s client.Status) func(map[string]any) bool {
	return func(body map[string]any) bool { return body["status"] == string(s) }
}

func validInput() client.Input {
	return client.Input{
		Name:         "Ada Lovelace",
		Email:        "ada@example.com",
		Company:      "Analytical Engines",
		ProjectType:  client.ProjectWebDevelopment,
		ProjectScope: "Companion site for the analytical engine",
		BudgetRange:  "$10k-$25k",
	}
}

// ── Liveness ──────────────────────────────────────────

func TestRootAndHealth(t *testing.T) {
	f := setup(t)

	for _, path := range []string{"/", "/health"} {
		w, body := f.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
		if body["status"] != "healthy" || body["version"] != api.Version {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestHealth_AfterShutdown(t *testing.T) {
	f := setup(t)
	if err := f.eng.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	w, body := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Errorf("GET /health = %d %v", w.Code, body)
	}

	w, body = f.do(t, http.MethodPost, "/api/v1/onboarding/start", validInput())
	if w.Code != http.StatusServiceUnavailable || body["error_code"] != "UNAVAILABLE" {
		t.Errorf("start after shutdown = %d %v", w.Code, body)
	}
}

// ── Start ─────────────────────────────────────────────

func TestStart(t *testing.T) {
	f := setup(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/onboarding/start", validInput())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Ada Lovelace") {
		t.Errorf("message = %q", msg)
	}

	cid, _ := body["client_id"].(string)
	if _, err := id.ParseClientID(cid); err != nil {
		t.Errorf("client_id %q: %v", cid, err)
	}

	data, _ := body["data"].(map[string]any)
	progress, _ := data["progress"].(map[string]any)
	steps, _ := progress["steps"].([]any)
	if len(steps) != workflow.DefaultOnboarding().Len() {
		t.Errorf("len(steps) = %d", len(steps))
	}
}

func TestStart_Errors(t *testing.T) {
	f := setup(t)

	bad := validInput()
	bad.Email = "not-an-email"

	tests := []struct {
		name string
		body any
		code int
		err  string
	}{
		{"malformed", "{", http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid email", bad, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"short scope", client.Input{Name: "Ada", Email: "a@b.co", ProjectType: client.ProjectDesign, ProjectScope: "short"},
			http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, "/api/v1/onboarding/start", tt.body)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			if body["error_code"] != tt.err {
				t.Errorf("error_code = %v, want %s", body["error_code"], tt.err)
			}
			if body["success"] != false {
				t.Errorf("success = %v", body["success"])
			}
		})
	}
}

func TestStart_RateLimited(t *testing.T) {
	f := setup(t, api.WithStartLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	f.start(t)
	w, body := f.do(t, http.MethodPost, "/api/v1/onboarding/start", validInput())
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if body["error_code"] != "RATE_LIMITED" {
		t.Errorf("error_code = %v", body["error_code"])
	}
}

// ── Approval flow ─────────────────────────────────────

func TestApproveFlow(t *testing.T) {
	f := setup(t)
	cid := f.start(t)

	body := f.waitStatus(t, cid, awaiting)
	if body["current_step"] != "Human Approval" {
		t.Errorf("current_step = %v", body["current_step"])
	}

	base := "/api/v1/onboarding/approve/" + cid + "/"

	w, body := f.do(t, http.MethodPost, base+workflow.StepHumanApproval, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing approved: status = %d, body = %v", w.Code, body)
	}

	w, _ = f.do(t, http.MethodPost, base+"no_such_step?approved=true", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown step: status = %d", w.Code)
	}

	w, _ = f.do(t, http.MethodPost, base+workflow.StepCreateDriveFolder+"?approved=true", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("non-parked step: status = %d", w.Code)
	}

	w, body = f.do(t, http.MethodPost, base+workflow.StepHumanApproval+"?approved=true&feedback=looks+good", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d, body = %v", w.Code, body)
	}
	if body["approved"] != true || body["feedback"] != "looks good" || body["step_id"] != workflow.StepHumanApproval {
		t.Errorf("approve body = %v", body)
	}

	body = f.waitStatus(t, cid, statusIs(client.StatusCompleted))
	if body["progress_percentage"] != 100.0 || body["current_step"] != "Completed" {
		t.Errorf("completed body = %v", body)
	}

	w, _ = f.do(t, http.MethodPost, base+workflow.StepHumanApproval+"?approved=true", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second approval: status = %d, want 409", w.Code)
	}
}

func TestReject(t *testing.T) {
	f := setup(t)
	cid := f.start(t)
	f.waitStatus(t, cid, awaiting)

	w, _ := f.do(t, http.MethodPost,
		"/api/v1/onboarding/approve/"+cid+"/"+workflow.StepHumanApproval+"?approved=false&feedback=scope+unclear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: status = %d", w.Code)
	}

	body := f.waitStatus(t, cid, statusIs(client.StatusFailed))
	if body["current_step"] != "Failed" {
		t.Errorf("current_step = %v", body["current_step"])
	}
}

func TestCancel(t *testing.T) {
	f := setup(t)
	cid := f.start(t)
	f.waitStatus(t, cid, awaiting)

	w, body := f.do(t, http.MethodPost, "/api/v1/onboarding/cancel/"+cid, api.CancelRequest{Reason: "client withdrew"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d, body = %v", w.Code, body)
	}
	f.waitStatus(t, cid, statusIs(client.StatusFailed))
	f.waitDone(t, cid)

	w, _ = f.do(t, http.MethodPost, "/api/v1/onboarding/cancel/"+cid, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel: status = %d, want 409", w.Code)
	}
}

// ── Clients ───────────────────────────────────────────

func TestClients(t *testing.T) {
	f := setup(t)
	first := f.start(t)
	second := f.start(t)

	w, body := f.do(t, http.MethodGet, "/api/v1/onboarding/clients?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	data, _ := body["data"].(map[string]any)
	if data["total"] != 2.0 || data["has_more"] != true {
		t.Errorf("list data = %v", data)
	}
	clients, _ := data["clients"].([]any)
	if len(clients) != 1 {
		t.Fatalf("len(clients) = %d", len(clients))
	}
	if got := clients[0].(map[string]any)["id"]; got != second {
		t.Errorf("newest client = %v, want %s", got, second)
	}

	w, body = f.do(t, http.MethodGet, "/api/v1/onboarding/clients?status=completed", nil)
	data, _ = body["data"].(map[string]any)
	if w.Code != http.StatusOK || data["total"] != 0.0 {
		t.Errorf("completed filter = %d %v", w.Code, data)
	}

	for _, q := range []string{"status=bogus", "limit=0", "limit=101", "offset=-1"} {
		if w, _ := f.do(t, http.MethodGet, "/api/v1/onboarding/clients?"+q, nil); w.Code != http.StatusUnprocessableEntity {
			t.Errorf("?%s: status = %d, want 422", q, w.Code)
		}
	}

	w, body = f.do(t, http.MethodGet, "/api/v1/onboarding/client/"+first, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	data, _ = body["data"].(map[string]any)
	cl, _ := data["client"].(map[string]any)
	if cl["email"] != "ada@example.com" || data["progress"] == nil {
		t.Errorf("get data = %v", data)
	}
}

func TestDeleteClient(t *testing.T) {
	f := setup(t)
	cid := f.start(t)

	w, body := f.do(t, http.MethodDelete, "/api/v1/onboarding/client/"+cid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body = %v", w.Code, body)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Ada Lovelace") {
		t.Errorf("message = %q", msg)
	}

	for _, path := range []string{"/api/v1/onboarding/client/" + cid, "/api/v1/onboarding/status/" + cid} {
		if w, _ := f.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET %s after delete = %d, want 404", path, w.Code)
		}
	}
	if w, _ := f.do(t, http.MethodDelete, "/api/v1/onboarding/client/"+cid, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	f := setup(t)

	for _, path := range []string{
		"/api/v1/onboarding/status/" + id.NewClientID().String(),
		"/api/v1/onboarding/status/garbage",
		"/api/v1/onboarding/client/" + id.NewClientID().String(),
	} {
		w, body := f.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound || body["error_code"] != "NOT_FOUND" {
			t.Errorf("GET %s = %d %v", path, w.Code, body)
		}
	}
}
