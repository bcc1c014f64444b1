package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/futureself/backend/internal/analytics"
	"github.com/futureself/backend/internal/astro"
	"github.com/futureself/backend/internal/database"
)

type userRequest struct {
	Name              string `json:"name"`
	OnboardingAnswers string `json:"onboarding_answers"`
	Location          string `json:"location"`
	BirthDate         string `json:"birth_date"`
	BirthCountry      string `json:"birth_country"`
}

type userResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	OnboardingAnswers string `json:"onboarding_answers,omitempty"`
	Location          string `json:"location,omitempty"`
	BirthDate         string `json:"birth_date,omitempty"`
	BirthCountry      string `json:"birth_country,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

func toUserResponse(u *database.User) userResponse {
	resp := userResponse{
		ID:                u.ID,
		Name:              u.Name,
		OnboardingAnswers: u.OnboardingAnswers,
		Location:          u.Location,
		BirthCountry:      u.BirthCountry,
	}
	if u.BirthDate.Valid {
		resp.BirthDate = u.BirthDate.Time.Format(time.DateOnly)
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	user := &database.User{
		ID:                uuid.NewString(),
		Name:              req.Name,
		OnboardingAnswers: req.OnboardingAnswers,
		Location:          req.Location,
		BirthCountry:      req.BirthCountry,
	}
	if req.BirthDate != "" {
		parsed, err := time.Parse(time.DateOnly, req.BirthDate)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
			return
		}
		user.BirthDate = sql.NullTime{Time: parsed, Valid: true}
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.log.ErrorContext(r.Context(), "creating user failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	s.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// handleUpdateUser merges the provided fields into the stored user.
// Empty fields are left untouched, so a PUT cannot clear a value.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}

	var req userRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.OnboardingAnswers != "" {
		user.OnboardingAnswers = req.OnboardingAnswers
	}
	if req.Location != "" {
		user.Location = req.Location
	}
	if req.BirthCountry != "" {
		user.BirthCountry = req.BirthCountry
	}
	if req.BirthDate != "" {
		parsed, err := time.Parse(time.DateOnly, req.BirthDate)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
			return
		}
		user.BirthDate = sql.NullTime{Time: parsed, Valid: true}
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.ErrorContext(r.Context(), "updating user failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleAstrology(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}
	if !user.BirthDate.Valid {
		s.writeError(w, http.StatusBadRequest, "user has no birth date on file")
		return
	}

	chart := astro.GenerateBirthChart(user.BirthDate.Time, user.BirthCountry)
	insights := astro.GenerateInsights(chart)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"chart":    chart,
		"insights": insights,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}

	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := s.store.GetRecentMessages(r.Context(), user.ID, limit)
	if err != nil {
		s.log.ErrorContext(r.Context(), "loading messages failed", "user_id", user.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	type messageResponse struct {
		Author    string `json:"author"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}
	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageResponse{
			Author:    m.Author,
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"messages": out,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			s.writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	reportType := r.URL.Query().Get("type")
	if reportType == "" {
		reportType = "all"
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	reports := make(map[string]analytics.Report, 2)

	if reportType == "emotion" || reportType == "all" {
		rows, err := s.store.GetEmotionAnalysesSince(r.Context(), user.ID, since)
		if err != nil {
			s.log.ErrorContext(r.Context(), "loading emotion analyses failed", "user_id", user.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to load analytics")
			return
		}
		reports["emotion"] = analytics.EmotionTrend(rows, days)
	}
	if reportType == "bias" || reportType == "all" {
		rows, err := s.store.GetBiasAnalysesSince(r.Context(), user.ID, since)
		if err != nil {
			s.log.ErrorContext(r.Context(), "loading bias analyses failed", "user_id", user.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to load analytics")
			return
		}
		reports["bias"] = analytics.BiasTrend(rows, days)
	}

	if len(reports) == 0 {
		s.writeError(w, http.StatusBadRequest, "type must be emotion, bias, or all")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"days":    days,
		"reports": reports,
	})
}

// lookupUser resolves the {id} path variable, writing the error
// response itself when the user cannot be served.
func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request) (*database.User, bool) {
	userID := mux.Vars(r)["id"]
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user id is required")
		return nil, false
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "loading user failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, false
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}
