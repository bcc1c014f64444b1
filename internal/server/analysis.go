package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/futureself/backend/internal/location"
	"github.com/futureself/backend/internal/tasks"
)

type analysisRequest struct {
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) handleAnalyzeEmotion(w http.ResponseWriter, r *http.Request) {
	s.enqueueAnalysis(w, r, tasks.TypeAnalyzeEmotion)
}

func (s *Server) handleAnalyzeBias(w http.ResponseWriter, r *http.Request) {
	s.enqueueAnalysis(w, r, tasks.TypeAnalyzeBias)
}

func (s *Server) enqueueAnalysis(w http.ResponseWriter, r *http.Request, taskType string) {
	ctx := r.Context()

	var req analysisRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "loading user failed", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}

	taskID, err := s.queue.Enqueue(ctx, taskType, tasks.AnalysisPayload{
		UserID: req.UserID,
		Text:   req.Text,
	}, req.IdempotencyKey)
	if err != nil {
		s.log.ErrorContext(ctx, "enqueueing analysis failed", "type", taskType, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "task queue unavailable")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["id"]

	status, err := s.queue.Status(ctx, taskID)
	if err != nil {
		s.log.ErrorContext(ctx, "reading task status failed", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "task queue unavailable")
		return
	}
	if status == nil {
		s.writeError(w, http.StatusNotFound, "unknown task id")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  status,
	})
}

func (s *Server) handleLocationContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.locCfg.WeatherAPIKey == "" {
		s.writeError(w, http.StatusServiceUnavailable, "location lookups are not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	result, err := s.location.Context(ctx, query)
	if err != nil {
		if errors.Is(err, location.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "location not found")
			return
		}
		s.log.ErrorContext(ctx, "location context failed", "query", query, "error", err)
		s.writeError(w, http.StatusBadGateway, "location lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}
