package bias_test

import (
	"testing"

	"github.com/futureself/backend/internal/bias"
)

func TestAnalyzeEmpty(t *testing.T) {
	t.Parallel()

	analyzer := bias.NewAnalyzer()
	result := analyzer.Analyze("")

	if result.ToxicityScore != 0 {
		t.Errorf("ToxicityScore = %f, want 0", result.ToxicityScore)
	}
	if result.Language != "und" {
		t.Errorf("Language = %q, want %q", result.Language, "und")
	}
	if len(result.Recommendations) == 0 {
		t.Error("expected at least one recommendation")
	}
}

func TestAnalyzeNeutralText(t *testing.T) {
	t.Parallel()

	analyzer := bias.NewAnalyzer()
	result := analyzer.Analyze("The quarterly report is attached for your review and consideration.")

	if result.ToxicityScore != 0 {
		t.Errorf("ToxicityScore = %f, want 0 for neutral text", result.ToxicityScore)
	}
}

func TestAnalyzeHostileText(t *testing.T) {
	t.Parallel()

	analyzer := bias.NewAnalyzer()
	result := analyzer.Analyze("I hate you, you are a horrible, disgusting, worthless idiot and everything you do is awful")

	if result.ToxicityScore <= 0 {
		t.Errorf("ToxicityScore = %f, want > 0 for hostile text", result.ToxicityScore)
	}
	if result.ToxicityScore > 1 {
		t.Errorf("ToxicityScore = %f, want <= 1", result.ToxicityScore)
	}
	if result.Sentiment.Compound >= 0 {
		t.Errorf("Sentiment.Compound = %f, want negative", result.Sentiment.Compound)
	}
	if len(result.Recommendations) < 2 {
		t.Errorf("Recommendations = %v, want escalated guidance for hostile text", result.Recommendations)
	}
}

func TestAnalyzeDetectsEnglish(t *testing.T) {
	t.Parallel()

	analyzer := bias.NewAnalyzer()
	result := analyzer.Analyze("This is a perfectly ordinary English sentence about the weather today and how pleasant it has been.")

	if result.Language != "eng" {
		t.Errorf("Language = %q, want %q", result.Language, "eng")
	}
}

func TestAnalyzePositiveTextNotToxic(t *testing.T) {
	t.Parallel()

	analyzer := bias.NewAnalyzer()
	result := analyzer.Analyze("You did an amazing job, I'm so proud of you and grateful for your help!")

	if result.ToxicityScore != 0 {
		t.Errorf("ToxicityScore = %f, want 0 for positive text", result.ToxicityScore)
	}
	if result.Sentiment.Compound <= 0 {
		t.Errorf("Sentiment.Compound = %f, want positive", result.Sentiment.Compound)
	}
}
