package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mentora-bot/mentora/internal/mentora/classify"
	"github.com/mentora-bot/mentora/internal/mentora/decision"
	"github.com/mentora-bot/mentora/internal/mentora/memory"
	"github.com/mentora-bot/mentora/internal/mentora/query"
	"github.com/mentora-bot/mentora/internal/mentora/resolver"
	"github.com/mentora-bot/mentora/internal/mentora/rules"
	"github.com/mentora-bot/mentora/internal/mentora/store"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()

	st := store.NewMemoryStore()
	memories := memory.NewManager(st, memory.ManagerConfig{ImmediateWrites: true})
	t.Cleanup(memories.Close)

	res := resolver.New(resolver.Options{
		Patterns: classify.NewPatternClassifier(rules.Default()),
		Engine:   decision.NewEngine(),
		Contexts: memory.NewContextStore(time.Hour),
		Memories: memories,
		Queries:  query.NewRouter(st, memories),
	})

	srv := httptest.NewServer(New("127.0.0.1:0", res, memories, token).TestHandler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q", health.Status)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Version == "" {
		t.Error("Version not set")
	}
	if status.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestResolveEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	body := strings.NewReader(`{"user_id":"u1","text":"cancel math course"}`)
	resp, err := http.Post(srv.URL+"/v1/resolve", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var outcome resolver.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.TraceID == "" {
		t.Error("trace_id not set")
	}
	if outcome.Decision == nil || outcome.Decision.FinalIntent != "cancel_course" {
		t.Errorf("decision = %+v", outcome.Decision)
	}
}

func TestResolveEndpointValidation(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing user_id", `{"text":"hello"}`},
		{"missing text", `{"user_id":"u1"}`},
		{"blank text", `{"user_id":"u1","text":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/resolve", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var e map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
				t.Fatal(err)
			}
			if e["error"] == "" {
				t.Error("error body missing")
			}
		})
	}
}

func TestResolveEndpointMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/v1/resolve")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, "sekrit")
	client := srv.Client()

	// /health stays open.
	resp, err := client.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want open access", resp.StatusCode)
	}

	// No token.
	resp, err = client.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	// Wrong token.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", resp.StatusCode)
	}

	// Correct token.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp.StatusCode)
	}
}
