package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/futureself/backend/internal/astro"
	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/logger"
	"github.com/futureself/backend/internal/prompt"
	"github.com/futureself/backend/internal/style"
	"github.com/futureself/backend/internal/text"
)

// locationContextTimeout bounds the best-effort location lookup inside
// the chat pipeline.
const locationContextTimeout = 5 * time.Second

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, user, ok := s.prepareChat(w, r)
	if !ok {
		return
	}

	builtPrompt := s.buildPrompt(ctx, user, req.Message)

	raw, err := s.ai.Generate(ctx, builtPrompt)
	if err != nil {
		s.log.ErrorContext(ctx, "generation failed",
			"user_id", user.ID, "error", err)
		s.writeError(w, http.StatusBadGateway, "the future self is unreachable right now")
		return
	}

	reply := text.Humanize(raw)
	s.saveReply(ctx, user.ID, reply)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"user_id": user.ID,
		"reply":   reply,
	})
}

// handleChatStream runs the chat pipeline but streams the reply over
// SSE. The request context flows into the model call, so a client that
// disconnects mid-stream cancels upstream generation.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, user, ok := s.prepareChat(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	builtPrompt := s.buildPrompt(ctx, user, req.Message)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var full strings.Builder
	err := s.ai.GenerateStream(ctx, builtPrompt, func(chunk string) error {
		full.WriteString(chunk)
		if _, err := fmt.Fprintf(w, "%s\n", sseData(chunk)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.log.InfoContext(ctx, "stream client disconnected", "user_id", user.ID)
			return
		}
		s.log.ErrorContext(ctx, "stream generation failed", "user_id", user.ID, "error", err)
		fmt.Fprintf(w, "event: error\ndata: generation failed\n\n")
		flusher.Flush()
		return
	}

	reply := text.Humanize(full.String())

	// The client already has the text, so persistence uses a fresh
	// context: a disconnect right after the last chunk must not lose
	// the message.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.saveReply(saveCtx, user.ID, reply)

	fmt.Fprintf(w, "event: done\n%s\n", sseData(reply))
	flusher.Flush()
}

// prepareChat validates the request, persists the user message, and
// updates the user's style profile and personal details.
func (s *Server) prepareChat(w http.ResponseWriter, r *http.Request) (*chatRequest, *database.User, bool) {
	ctx := r.Context()

	var req chatRequest
	if !s.decodeJSON(w, r, &req) {
		return nil, nil, false
	}
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and message are required")
		return nil, nil, false
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "loading user failed", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, nil, false
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user not found")
		return nil, nil, false
	}

	if err := s.store.SaveChatMessage(ctx, &database.ChatMessage{
		UserID:    user.ID,
		Author:    user.ID,
		Content:   req.Message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.log.ErrorContext(ctx, "saving user message failed", "user_id", user.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save message")
		return nil, nil, false
	}

	s.updateProfile(ctx, user.ID, req.Message)
	return &req, user, true
}

// updateProfile refreshes the style snapshot and merges any extracted
// personal details. Both are best-effort.
func (s *Server) updateProfile(ctx context.Context, userID, message string) {
	stats := style.Analyze(message)
	if err := s.store.SaveStyleProfile(ctx, &database.StyleProfile{
		UserID:             userID,
		AvgSentenceLength:  stats.AvgSentenceLength,
		AvgWordLength:      stats.AvgWordLength,
		EmojiFrequency:     stats.EmojiFrequency,
		ExclamationDensity: stats.ExclamationDensity,
		QuestionDensity:    stats.QuestionDensity,
		MessageLength:      stats.MessageLength,
	}); err != nil {
		s.log.WarnContext(ctx, "saving style profile failed", "user_id", userID, "error", err)
	}

	for category, phrases := range prompt.ExtractDetails(message) {
		if err := s.store.MergePersonalDetails(ctx, userID, category, phrases); err != nil {
			s.log.WarnContext(ctx, "merging personal details failed",
				"user_id", userID, "category", category, "error", err)
		}
	}
}

// buildPrompt gathers whatever profile data is available and assembles
// the persona prompt. Failed lookups degrade to a smaller prompt.
func (s *Server) buildPrompt(ctx context.Context, user *database.User, message string) string {
	data := prompt.Data{
		User:        user,
		UserMessage: message,
	}

	if profile, err := s.store.GetStyleProfile(ctx, user.ID); err != nil {
		s.log.WarnContext(ctx, "loading style profile failed", "user_id", user.ID, "error", err)
	} else {
		data.Style = profile
	}

	if details, err := s.store.GetPersonalDetails(ctx, user.ID); err != nil {
		s.log.WarnContext(ctx, "loading personal details failed", "user_id", user.ID, "error", err)
	} else {
		data.Details = details
	}

	if user.BirthDate.Valid {
		data.Chart = astro.GenerateBirthChart(user.BirthDate.Time, user.BirthCountry)
		insights := astro.GenerateInsights(data.Chart)
		data.Insights = &insights
	}

	if user.Location != "" && s.locCfg.WeatherAPIKey != "" {
		locCtx, cancel := context.WithTimeout(ctx, locationContextTimeout)
		if locationContext, err := s.location.Context(locCtx, user.Location); err != nil {
			s.log.WarnContext(ctx, "location context failed",
				"user_id", user.ID, "location", logger.TruncateForLog(user.Location), "error", err)
		} else {
			data.LocationContext = locationContext.Summary
		}
		cancel()
	}

	if history, err := s.store.GetRecentMessages(ctx, user.ID, s.cfg.HistoryLimit); err != nil {
		s.log.WarnContext(ctx, "loading history failed", "user_id", user.ID, "error", err)
	} else {
		data.History = history
	}

	return prompt.Build(data)
}

// saveReply persists the assistant message. A failed write is logged
// but never fails the request, the user already has the reply.
func (s *Server) saveReply(ctx context.Context, userID, reply string) {
	if err := s.store.SaveChatMessage(ctx, &database.ChatMessage{
		UserID:    userID,
		Author:    database.AuthorAI,
		Content:   reply,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.log.ErrorContext(ctx, "saving assistant reply failed",
			"user_id", userID,
			"reply_preview", logger.TruncateForLog(reply),
			"error", err)
	}
}

// sseData frames a payload as SSE data lines, one per newline-separated
// segment, so newlines survive without client-side unescaping.
func sseData(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
