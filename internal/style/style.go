// Package style extracts writing-style statistics from a single message.
// Profiles reflect the most recent message only; they are snapshots, not
// running aggregates.
package style

import (
	"strings"
	"unicode"
)

// Stats holds the style statistics for one message. Densities are per
// rune of text; lengths are averages over sentences and words.
type Stats struct {
	AvgSentenceLength  float64 `json:"avg_sentence_length"`
	AvgWordLength      float64 `json:"avg_word_length"`
	EmojiFrequency     float64 `json:"emoji_frequency"`
	ExclamationDensity float64 `json:"exclamation_density"`
	QuestionDensity    float64 `json:"question_density"`
	MessageLength      int     `json:"message_length"`
}

// Analyze computes style statistics for a message. Empty input yields
// the zero value.
func Analyze(text string) Stats {
	text = strings.TrimSpace(text)
	if text == "" {
		return Stats{}
	}

	runes := []rune(text)
	length := len(runes)

	var exclamations, questions, emojis int
	for _, r := range runes {
		switch {
		case r == '!':
			exclamations++
		case r == '?':
			questions++
		case isEmoji(r):
			emojis++
		}
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	var wordRunes int
	for _, w := range words {
		wordRunes += len([]rune(strings.TrimFunc(w, unicode.IsPunct)))
	}

	sentences := countSentences(text)

	stats := Stats{
		ExclamationDensity: float64(exclamations) / float64(length),
		QuestionDensity:    float64(questions) / float64(length),
		EmojiFrequency:     float64(emojis) / float64(length),
		MessageLength:      length,
	}
	if len(words) > 0 {
		stats.AvgWordLength = float64(wordRunes) / float64(len(words))
		stats.AvgSentenceLength = float64(len(words)) / float64(sentences)
	}
	return stats
}

// countSentences counts terminator runs, so "What?!" is one sentence.
// Text without terminators counts as a single sentence.
func countSentences(text string) int {
	var count int
	var inRun bool
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if !inRun {
				count++
				inRun = true
			}
			continue
		}
		inRun = false
	}
	if count == 0 {
		return 1
	}
	return count
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0x2764: // heavy black heart
		return true
	default:
		return false
	}
}
