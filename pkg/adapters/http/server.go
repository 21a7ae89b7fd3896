// Package http exposes the engine over a small JSON API.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
)

// Runner is the engine surface the server needs.
type Runner interface {
	Run(ctx context.Context, sessionID, input string) (*domain.RunResult, error)
}

// ToolLister enumerates the mounted tools for the info endpoint.
type ToolLister interface {
	Tools() []ports.Tool
}

// Server routes HTTP requests into a Runner.
type Server struct {
	runner   Runner
	tools    ToolLister
	sessions *session.Manager
	metrics  http.Handler
	logger   *slog.Logger
	version  string
}

// Option configures the server.
type Option func(*Server)

// WithToolLister enables tool names in GET /info.
func WithToolLister(tools ToolLister) Option {
	return func(s *Server) {
		s.tools = tools
	}
}

// WithSessions enables the session listing and deletion endpoints.
func WithSessions(manager *session.Manager) Option {
	return func(s *Server) {
		s.sessions = manager
	}
}

// WithMetricsHandler mounts a handler at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewHandler builds the full HTTP handler for the engine.
func NewHandler(runner Runner, opts ...Option) http.Handler {
	s := &Server{
		runner:  runner,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Post("/run", s.handleRun)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	if s.sessions != nil {
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
	}
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.ServeHTTP)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type runRequest struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

// handleRun executes one loop invocation.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("Run: invalid request body", "err", err)
		return
	}
	if strings.TrimSpace(body.Input) == "" {
		http.Error(w, "input must not be empty", http.StatusUnprocessableEntity)
		return
	}
	if body.SessionID == "" {
		http.Error(w, "session_id must not be empty", http.StatusUnprocessableEntity)
		return
	}

	result, err := s.runner.Run(r.Context(), body.SessionID, body.Input)
	if err != nil {
		http.Error(w, "run failed: "+err.Error(), http.StatusInternalServerError)
		s.logger.Error("Run failed", "session_id", body.SessionID, "err", err)
		return
	}

	writeJSON(w, s.logger, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    "arbor",
		"version": s.version,
	}
	if s.tools != nil {
		names := []string{}
		for _, tool := range s.tools.Tools() {
			names = append(names, tool.Name())
		}
		info["tools"] = names
	}
	writeJSON(w, s.logger, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		s.logger.Error("List sessions failed", "err", err)
		return
	}
	writeJSON(w, s.logger, map[string]any{"sessions": ids})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(r.Context(), sessionID); err != nil {
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		s.logger.Error("Delete session failed", "session_id", sessionID, "err", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}
