// Package bias screens message text for hostile or toxic phrasing. The
// toxicity score is derived from VADER's negative sentiment intensity,
// and the message language is detected so callers can flag unsupported
// languages.
package bias

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/jonreiter/govader"
)

// Toxicity thresholds for recommendation tiers.
const (
	highToxicity     = 0.7
	moderateToxicity = 0.4
)

// Sentiment carries the raw VADER intensities for the analyzed text.
type Sentiment struct {
	Compound float64 `json:"compound"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// Result is one bias screening outcome. Language is an ISO 639-3 code,
// or "und" when detection is unreliable.
type Result struct {
	ToxicityScore   float64   `json:"toxicity_score"`
	Language        string    `json:"language"`
	Sentiment       Sentiment `json:"sentiment"`
	Recommendations []string  `json:"recommendations"`
}

// Analyzer screens message text. It is safe for concurrent use.
type Analyzer struct {
	sia *govader.SentimentIntensityAnalyzer
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{sia: govader.NewSentimentIntensityAnalyzer()}
}

// Analyze screens a message. Empty input scores zero toxicity.
func (a *Analyzer) Analyze(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{
			Language:        "und",
			Recommendations: recommendations(0),
		}
	}

	scores := a.sia.PolarityScores(text)
	sentiment := Sentiment{
		Compound: scores.Compound,
		Positive: scores.Positive,
		Negative: scores.Negative,
		Neutral:  scores.Neutral,
	}

	toxicity := toxicityScore(sentiment)

	return Result{
		ToxicityScore:   toxicity,
		Language:        detectLanguage(text),
		Sentiment:       sentiment,
		Recommendations: recommendations(toxicity),
	}
}

// toxicityScore maps sentiment onto [0, 1]. Only clearly negative text
// registers; the negative intensity is amplified by how strongly the
// compound score leans negative.
func toxicityScore(s Sentiment) float64 {
	if s.Compound > -0.05 {
		return 0
	}
	score := s.Negative * (1 + (-s.Compound))
	if score > 1 {
		score = 1
	}
	return score
}

func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "und"
	}
	return whatlanggo.LangToString(info.Lang)
}

func recommendations(toxicity float64) []string {
	switch {
	case toxicity >= highToxicity:
		return []string{
			"This message contains strongly hostile language.",
			"Consider rewording before sending.",
			"Take a moment before responding to heated messages.",
		}
	case toxicity >= moderateToxicity:
		return []string{
			"This message leans negative in tone.",
			"A softer phrasing may land better.",
		}
	default:
		return []string{"No concerning language detected."}
	}
}
