// Package emotion classifies the emotional tone of a message into six
// buckets: joy, sadness, anger, fear, surprise, and neutral. Scores are
// derived from VADER sentiment intensities, with small cue-word sets used
// to split negative mass between sadness, anger, and fear.
package emotion

import (
	"strings"

	"github.com/jonreiter/govader"
)

// Emotion bucket names, also used as JSON keys in stored results.
const (
	Joy      = "joy"
	Sadness  = "sadness"
	Anger    = "anger"
	Fear     = "fear"
	Surprise = "surprise"
	Neutral  = "neutral"
)

var angerCues = map[string]struct{}{
	"hate": {}, "angry": {}, "furious": {}, "annoyed": {},
	"mad": {}, "rage": {}, "irritated": {}, "frustrated": {},
}

var fearCues = map[string]struct{}{
	"afraid": {}, "scared": {}, "anxious": {}, "worried": {},
	"nervous": {}, "terrified": {}, "panic": {}, "dread": {},
}

var surpriseCues = map[string]struct{}{
	"wow": {}, "unexpected": {}, "surprised": {}, "unbelievable": {},
	"amazed": {}, "suddenly": {}, "shocking": {}, "shocked": {},
}

// Result holds the normalized per-emotion scores for a message. Scores
// sum to 1; DominantEmotion carries the highest score as Confidence.
type Result struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Confidence      float64            `json:"confidence"`
	Emotions        map[string]float64 `json:"emotions"`
}

// Analyzer scores message text. It is safe for concurrent use.
type Analyzer struct {
	sia *govader.SentimentIntensityAnalyzer
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{sia: govader.NewSentimentIntensityAnalyzer()}
}

// Analyze classifies a message. Empty or whitespace-only input is
// neutral with full confidence.
func (a *Analyzer) Analyze(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return neutralResult()
	}

	sentiment := a.sia.PolarityScores(text)
	words := tokenize(text)

	scores := map[string]float64{
		Joy:      sentiment.Positive,
		Sadness:  0,
		Anger:    0,
		Fear:     0,
		Surprise: 0,
		Neutral:  sentiment.Neutral,
	}

	// Split the negative mass between sadness, anger, and fear using
	// cue-word hits; with no hits it all reads as sadness.
	angerHits := countCues(words, angerCues)
	fearHits := countCues(words, fearCues)
	total := angerHits + fearHits
	switch {
	case total == 0:
		scores[Sadness] = sentiment.Negative
	default:
		scores[Anger] = sentiment.Negative * float64(angerHits) / float64(total)
		scores[Fear] = sentiment.Negative * float64(fearHits) / float64(total)
	}

	if hits := countCues(words, surpriseCues); hits > 0 {
		// Surprise borrows from the neutral mass so totals stay put.
		borrowed := scores[Neutral] * 0.5
		scores[Surprise] = borrowed
		scores[Neutral] -= borrowed
	}

	normalize(scores)

	dominant, confidence := Neutral, 0.0
	for _, name := range []string{Joy, Sadness, Anger, Fear, Surprise, Neutral} {
		if scores[name] > confidence {
			dominant, confidence = name, scores[name]
		}
	}

	return Result{
		DominantEmotion: dominant,
		Confidence:      confidence,
		Emotions:        scores,
	}
}

func neutralResult() Result {
	return Result{
		DominantEmotion: Neutral,
		Confidence:      1,
		Emotions: map[string]float64{
			Joy: 0, Sadness: 0, Anger: 0, Fear: 0, Surprise: 0, Neutral: 1,
		},
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
}

func countCues(words []string, cues map[string]struct{}) int {
	var n int
	for _, w := range words {
		if _, ok := cues[w]; ok {
			n++
		}
	}
	return n
}

func normalize(scores map[string]float64) {
	var sum float64
	for _, v := range scores {
		sum += v
	}
	if sum == 0 {
		scores[Neutral] = 1
		return
	}
	for k, v := range scores {
		scores[k] = v / sum
	}
}
