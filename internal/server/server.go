// Package server exposes the HTTP API: user profiles, the chat
// pipeline, analysis task submission, and location context lookups.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/futureself/backend/internal/ai"
	"github.com/futureself/backend/internal/config"
	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/location"
	"github.com/futureself/backend/internal/logger"
	"github.com/futureself/backend/internal/queue"
)

// Deps bundles the services the handlers depend on.
type Deps struct {
	Store    database.Store
	AI       ai.Client
	Queue    *queue.Queue
	Location *location.Service
	Log      *slog.Logger
}

// Server routes HTTP requests to the API handlers.
type Server struct {
	cfg      config.ServerConfig
	locCfg   config.LocationConfig
	store    database.Store
	ai       ai.Client
	queue    *queue.Queue
	location *location.Service
	log      *slog.Logger
	router   *mux.Router
}

// New builds the server and its route table.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg.Server,
		locCfg:   cfg.Location,
		store:    deps.Store,
		ai:       deps.AI,
		queue:    deps.Queue,
		location: deps.Location,
		log:      deps.Log,
	}
	s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return logger.Middleware(s.log)(s.router)
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.authMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}/astrology", s.handleAstrology).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/messages", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/analytics", s.handleAnalytics).Methods(http.MethodGet)

	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)

	r.HandleFunc("/analysis/emotion", s.handleAnalyzeEmotion).Methods(http.MethodPost)
	r.HandleFunc("/analysis/bias", s.handleAnalyzeBias).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", s.handleTaskStatus).Methods(http.MethodGet)

	r.HandleFunc("/context/location", s.handleLocationContext).Methods(http.MethodGet)

	s.router = r
}

// authMiddleware enforces the configured API key via the X-API-Key
// header. The banner and health endpoints stay open for probes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" || r.URL.Path == "/" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != s.cfg.APIKey {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "future-self backend",
		"status":  "ok",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := map[string]string{"database": "ok", "queue": "ok"}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		s.log.ErrorContext(ctx, "database health check failed", "error", err)
		components["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := s.queue.Ping(ctx); err != nil {
		s.log.ErrorContext(ctx, "queue health check failed", "error", err)
		components["queue"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]any{
		"healthy":    status == http.StatusOK,
		"components": components,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
