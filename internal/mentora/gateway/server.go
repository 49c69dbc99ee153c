// Package gateway exposes the resolver over HTTP.
//
// Endpoints:
//
//	GET  /health      → HealthResponse
//	GET  /status      → StatusResponse
//	POST /v1/resolve  → ResolveRequest → resolver.Outcome
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mentora-bot/mentora/common/version"
	"github.com/mentora-bot/mentora/internal/mentora/memory"
	"github.com/mentora-bot/mentora/internal/mentora/resolver"
)

// maxBodyBytes caps the inbound request body.
const maxBodyBytes = 64 * 1024 // 64 KiB

// ResolveRequest is the body for POST /v1/resolve.
type ResolveRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version      string    `json:"version"`
	Uptime       float64   `json:"uptime_seconds"`
	StartedAt    time.Time `json:"started_at"`
	CacheEntries int       `json:"cache_entries"`
	CacheBytes   int64     `json:"cache_bytes"`
}

// Server is the HTTP gateway in front of the resolver.
type Server struct {
	addr      string
	resolver  *resolver.Resolver
	memories  *memory.Manager
	token     string
	startedAt time.Time
	server    *http.Server
}

// New creates a gateway listening on addr. An empty token disables
// authentication (dev/test mode).
func New(addr string, res *resolver.Resolver, memories *memory.Manager, token string) *Server {
	s := &Server{
		addr:      addr,
		resolver:  res,
		memories:  memories,
		token:     token,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/v1/resolve", s.handleResolve)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.authMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// authMiddleware rejects requests that do not carry the correct bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || auth[len("Bearer "):] != s.token {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener is bound so callers
// can immediately start sending requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.addr, err)
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, bytes := s.memories.CacheStats()
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:      version.Version,
		Uptime:       time.Since(s.startedAt).Seconds(),
		StartedAt:    s.startedAt,
		CacheEntries: entries,
		CacheBytes:   bytes,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	var req ResolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	outcome := s.resolver.Resolve(r.Context(), req.UserID, req.Text)
	writeJSON(w, http.StatusOK, outcome)
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
