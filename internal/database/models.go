package database

import (
	"database/sql"
	"time"
)

// AuthorAI is the author value recorded for assistant-generated messages.
// User-authored messages carry the user's id instead.
const AuthorAI = "ai"

// User holds a user's onboarding questionnaire answers, location, and
// birth data. Onboarding answers are stored as free text.
type User struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Name              string       `db:"name"`
	OnboardingAnswers string       `db:"onboarding_answers"`
	Location          string       `db:"location"`
	BirthDate         sql.NullTime `db:"birth_date"`
	BirthCountry      string       `db:"birth_country"`
}

// ChatMessage is one entry in the append-only per-user message log.
type ChatMessage struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserID    string    `db:"user_id"`
	Author    string    `db:"author"`
	Content   string    `db:"content"`
	Timestamp time.Time `db:"timestamp"`
}

// StyleProfile stores rolling last-seen text statistics for a user.
// It is overwritten, not aggregated, on each message.
type StyleProfile struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserID             string  `db:"user_id"`
	AvgSentenceLength  float64 `db:"avg_sentence_length"`
	AvgWordLength      float64 `db:"avg_word_length"`
	EmojiFrequency     float64 `db:"emoji_frequency"`
	ExclamationDensity float64 `db:"exclamation_density"`
	QuestionDensity    float64 `db:"question_density"`
	MessageLength      int     `db:"message_length"`
}

// PersonalDetail holds extracted phrase lists for a user and category,
// stored comma-separated and merged by list-union.
type PersonalDetail struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserID   string `db:"user_id"`
	Category string `db:"category"`
	Phrases  string `db:"phrases"`
}

// EmotionAnalysis is one stored emotion analysis result. Emotions holds
// the per-emotion score map as JSON.
type EmotionAnalysis struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	UserID          string    `db:"user_id"`
	DominantEmotion string    `db:"dominant_emotion"`
	Confidence      float64   `db:"confidence"`
	Emotions        string    `db:"emotions"`
	Timestamp       time.Time `db:"timestamp"`
}

// BiasAnalysis is one stored bias/toxicity analysis result. Sentiment and
// Recommendations hold JSON payloads.
type BiasAnalysis struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	UserID          string    `db:"user_id"`
	ToxicityScore   float64   `db:"toxicity_score"`
	Language        string    `db:"language"`
	Sentiment       string    `db:"sentiment"`
	Recommendations string    `db:"recommendations"`
	Timestamp       time.Time `db:"timestamp"`
}
