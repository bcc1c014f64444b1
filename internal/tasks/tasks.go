// Package tasks holds the worker task bodies: the analysis work the
// HTTP layer offloads to the queue instead of running inline.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/futureself/backend/internal/analytics"
	"github.com/futureself/backend/internal/bias"
	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/emotion"
	"github.com/futureself/backend/internal/queue"
)

// Task type names, shared with the HTTP layer that enqueues them.
const (
	TypeAnalyzeEmotion    = "analyze_emotion"
	TypeAnalyzeBias       = "analyze_bias"
	TypeGenerateAnalytics = "generate_analytics"
)

// Deps holds everything task bodies need.
type Deps struct {
	Store   database.Store
	Emotion *emotion.Analyzer
	Bias    *bias.Analyzer
	Log     *slog.Logger
}

// AnalysisPayload is the payload for the two text-analysis tasks.
type AnalysisPayload struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// AnalyticsPayload is the payload for the analytics task. Type selects
// "emotion", "bias", or "all"; Days defaults to 7.
type AnalyticsPayload struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days"`
	Type   string `json:"type"`
}

// RegisterAll binds every task body onto the worker.
func RegisterAll(w *queue.Worker, deps Deps) {
	w.Register(TypeAnalyzeEmotion, deps.analyzeEmotion)
	w.Register(TypeAnalyzeBias, deps.analyzeBias)
	w.Register(TypeGenerateAnalytics, deps.generateAnalytics)
}

func (d Deps) analyzeEmotion(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
	payload, err := decodeAnalysisPayload(task.Payload)
	if err != nil {
		return nil, err
	}

	progress("analyzing")
	result := d.Emotion.Analyze(payload.Text)

	emotions, err := json.Marshal(result.Emotions)
	if err != nil {
		return nil, fmt.Errorf("encoding emotion scores: %w", err)
	}

	if err := d.Store.SaveEmotionAnalysis(ctx, &database.EmotionAnalysis{
		UserID:          payload.UserID,
		DominantEmotion: result.DominantEmotion,
		Confidence:      result.Confidence,
		Emotions:        string(emotions),
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("persisting emotion analysis: %w", err)
	}

	return result, nil
}

func (d Deps) analyzeBias(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
	payload, err := decodeAnalysisPayload(task.Payload)
	if err != nil {
		return nil, err
	}

	progress("analyzing")
	result := d.Bias.Analyze(payload.Text)

	sentiment, err := json.Marshal(result.Sentiment)
	if err != nil {
		return nil, fmt.Errorf("encoding sentiment: %w", err)
	}
	recommendations, err := json.Marshal(result.Recommendations)
	if err != nil {
		return nil, fmt.Errorf("encoding recommendations: %w", err)
	}

	if err := d.Store.SaveBiasAnalysis(ctx, &database.BiasAnalysis{
		UserID:          payload.UserID,
		ToxicityScore:   result.ToxicityScore,
		Language:        result.Language,
		Sentiment:       string(sentiment),
		Recommendations: string(recommendations),
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("persisting bias analysis: %w", err)
	}

	return result, nil
}

func (d Deps) generateAnalytics(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
	var payload AnalyticsPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding analytics payload: %w", err)
	}
	if payload.UserID == "" {
		return nil, fmt.Errorf("analytics payload missing user_id")
	}
	if payload.Days <= 0 {
		payload.Days = 7
	}
	if payload.Type == "" {
		payload.Type = "all"
	}

	since := time.Now().UTC().AddDate(0, 0, -payload.Days)
	reports := make(map[string]analytics.Report, 2)

	if payload.Type == "emotion" || payload.Type == "all" {
		progress("aggregating emotion analyses")
		rows, err := d.Store.GetEmotionAnalysesSince(ctx, payload.UserID, since)
		if err != nil {
			return nil, fmt.Errorf("loading emotion analyses: %w", err)
		}
		reports["emotion"] = analytics.EmotionTrend(rows, payload.Days)
	}

	if payload.Type == "bias" || payload.Type == "all" {
		progress("aggregating bias analyses")
		rows, err := d.Store.GetBiasAnalysesSince(ctx, payload.UserID, since)
		if err != nil {
			return nil, fmt.Errorf("loading bias analyses: %w", err)
		}
		reports["bias"] = analytics.BiasTrend(rows, payload.Days)
	}

	if len(reports) == 0 {
		return nil, fmt.Errorf("unknown analytics type %q", payload.Type)
	}
	return reports, nil
}

func decodeAnalysisPayload(raw json.RawMessage) (*AnalysisPayload, error) {
	var payload AnalysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding analysis payload: %w", err)
	}
	if payload.UserID == "" {
		return nil, fmt.Errorf("analysis payload missing user_id")
	}
	if payload.Text == "" {
		return nil, fmt.Errorf("analysis payload missing text")
	}
	return &payload, nil
}
