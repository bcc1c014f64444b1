package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateUser inserts a new user row.
	CreateUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by id. Returns nil, nil if not found.
	GetUser(ctx context.Context, userID string) (*User, error)

	// UpdateUser overwrites a user's mutable fields.
	UpdateUser(ctx context.Context, user *User) error

	// ListUserIDs returns the ids of all users.
	ListUserIDs(ctx context.Context) ([]string, error)

	// SaveChatMessage appends a message to the chat log.
	SaveChatMessage(ctx context.Context, message *ChatMessage) error

	// GetRecentMessages retrieves the most recent 'limit' messages for a
	// user, in chronological order.
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]*ChatMessage, error)

	// SaveStyleProfile overwrites the user's style profile row.
	SaveStyleProfile(ctx context.Context, profile *StyleProfile) error

	// GetStyleProfile retrieves a user's style profile. Returns nil, nil
	// if not found.
	GetStyleProfile(ctx context.Context, userID string) (*StyleProfile, error)

	// MergePersonalDetails unions the given phrases into the user's
	// detail row for the category.
	MergePersonalDetails(ctx context.Context, userID, category string, phrases []string) error

	// GetPersonalDetails retrieves all detail rows for a user.
	GetPersonalDetails(ctx context.Context, userID string) ([]*PersonalDetail, error)

	// SaveEmotionAnalysis appends an emotion analysis result.
	SaveEmotionAnalysis(ctx context.Context, analysis *EmotionAnalysis) error

	// GetEmotionAnalysesSince retrieves emotion analyses for a user from
	// 'since' onward, in chronological order.
	GetEmotionAnalysesSince(ctx context.Context, userID string, since time.Time) ([]*EmotionAnalysis, error)

	// SaveBiasAnalysis appends a bias analysis result.
	SaveBiasAnalysis(ctx context.Context, analysis *BiasAnalysis) error

	// GetBiasAnalysesSince retrieves bias analyses for a user from
	// 'since' onward, in chronological order.
	GetBiasAnalysesSince(ctx context.Context, userID string, since time.Time) ([]*BiasAnalysis, error)

	// DeleteUserData deletes a user's messages, profiles, details, and
	// analyses in a single transaction.
	DeleteUserData(ctx context.Context, userID string) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) CreateUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user")
	}
	if user.ID == "" {
		return fmt.Errorf("user must have a non-empty id")
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (id, created_at, updated_at, name, onboarding_answers, location, birth_date, birth_country)
        VALUES (:id, :created_at, :updated_at, :name, :onboarding_answers, :location, :birth_date, :birth_country);
    `
	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		s.logger.ErrorContext(ctx, "Error creating user", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to create user %s: %w", user.ID, err)
	}

	s.logger.DebugContext(ctx, "User created", "user_id", user.ID)
	return nil
}

func (s *sqlxStore) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var user User
	query := `SELECT id, created_at, updated_at, name, onboarding_answers, location, birth_date, birth_country
	          FROM users WHERE id = ?`

	err := s.db.GetContext(ctx, &user, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Not found is expected in some cases, not an error.
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	return &user, nil
}

func (s *sqlxStore) UpdateUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot update nil user")
	}
	user.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE users SET
            name = :name,
            onboarding_answers = :onboarding_answers,
            location = :location,
            birth_date = :birth_date,
            birth_country = :birth_country,
            updated_at = :updated_at
        WHERE id = :id
    `
	result, err := s.db.NamedExecContext(ctx, query, user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating user", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *sqlxStore) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM users`); err != nil {
		s.logger.ErrorContext(ctx, "Error listing user ids", "error", err)
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) SaveChatMessage(ctx context.Context, message *ChatMessage) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.UserID == "" {
		return fmt.Errorf("message must have a non-empty user_id")
	}
	if message.Author == "" {
		return fmt.Errorf("message must have a non-empty author")
	}
	if message.Content == "" {
		return fmt.Errorf("message must have non-empty content")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now

	query := `
        INSERT INTO chat_messages (user_id, author, content, timestamp, created_at, updated_at)
        VALUES (:user_id, :author, :content, :timestamp, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving chat message", "user_id", message.UserID, "author", message.Author, "error", err)
		return fmt.Errorf("failed to save chat message (user %s): %w", message.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		message.ID = uint(id)
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
			"user_id", message.UserID, "error", err)
	}

	s.logger.DebugContext(ctx, "Chat message saved", "user_id", message.UserID, "message_id", message.ID)
	return nil
}

func (s *sqlxStore) GetRecentMessages(ctx context.Context, userID string, limit int) ([]*ChatMessage, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	} else if limit > 200 {
		limit = 200
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []*ChatMessage
	query := `
        SELECT id, created_at, updated_at, user_id, author, content, timestamp
        FROM chat_messages
        WHERE user_id = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &messages, query, userID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "user_id", userID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for user %s: %w", userID, err)
	}

	// Query returns newest first; reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// SaveStyleProfile overwrites the user's style profile row. The profile is
// last-writer-wins: each message replaces the previous snapshot.
func (s *sqlxStore) SaveStyleProfile(ctx context.Context, profile *StyleProfile) error {
	if profile == nil {
		return fmt.Errorf("cannot save nil style profile")
	}
	if profile.UserID == "" {
		return fmt.Errorf("style profile must have a non-empty user_id")
	}

	now := time.Now().UTC()
	profile.UpdatedAt = now
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}

	query := `
        INSERT INTO style_profiles (
            user_id, avg_sentence_length, avg_word_length, emoji_frequency,
            exclamation_density, question_density, message_length, created_at, updated_at
        ) VALUES (
            :user_id, :avg_sentence_length, :avg_word_length, :emoji_frequency,
            :exclamation_density, :question_density, :message_length, :created_at, :updated_at
        )
        ON CONFLICT (user_id) DO UPDATE SET
            avg_sentence_length = excluded.avg_sentence_length,
            avg_word_length = excluded.avg_word_length,
            emoji_frequency = excluded.emoji_frequency,
            exclamation_density = excluded.exclamation_density,
            question_density = excluded.question_density,
            message_length = excluded.message_length,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, profile); err != nil {
		s.logger.ErrorContext(ctx, "Error saving style profile", "user_id", profile.UserID, "error", err)
		return fmt.Errorf("failed to save style profile for user %s: %w", profile.UserID, err)
	}

	s.logger.DebugContext(ctx, "Style profile saved", "user_id", profile.UserID)
	return nil
}

func (s *sqlxStore) GetStyleProfile(ctx context.Context, userID string) (*StyleProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var profile StyleProfile
	query := `SELECT id, created_at, updated_at, user_id, avg_sentence_length, avg_word_length,
	                 emoji_frequency, exclamation_density, question_density, message_length
	          FROM style_profiles WHERE user_id = ?`

	err := s.db.GetContext(ctx, &profile, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting style profile", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get style profile for user %s: %w", userID, err)
	}

	return &profile, nil
}

// MergePersonalDetails unions phrases into the stored comma-separated list
// for the user/category pair. The union is order-preserving: existing
// phrases keep their position, new ones append in sorted order.
func (s *sqlxStore) MergePersonalDetails(ctx context.Context, userID, category string, phrases []string) error {
	if userID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if category == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if len(phrases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for detail merge", "user_id", userID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var existing string
	err = tx.GetContext(ctx, &existing,
		`SELECT phrases FROM personal_details WHERE user_id = ? AND category = ?`, userID, category)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read personal details for user %s: %w", userID, err)
	}

	merged := unionPhrases(existing, phrases)
	now := time.Now().UTC()

	query := `
        INSERT INTO personal_details (user_id, category, phrases, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (user_id, category) DO UPDATE SET
            phrases = excluded.phrases,
            updated_at = excluded.updated_at;
    `
	if _, err := tx.ExecContext(ctx, query, userID, category, merged, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error merging personal details", "user_id", userID, "category", category, "error", err)
		return fmt.Errorf("failed to merge personal details for user %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Personal details merged", "user_id", userID, "category", category)
	return nil
}

func unionPhrases(existing string, incoming []string) string {
	seen := make(map[string]bool)
	var result []string
	for _, p := range strings.Split(existing, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}

	var added []string
	for _, p := range incoming {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		added = append(added, p)
	}
	sort.Strings(added)

	return strings.Join(append(result, added...), ",")
}

func (s *sqlxStore) GetPersonalDetails(ctx context.Context, userID string) ([]*PersonalDetail, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var details []*PersonalDetail
	query := `SELECT id, created_at, updated_at, user_id, category, phrases
	          FROM personal_details WHERE user_id = ? ORDER BY category ASC`
	if err := s.db.SelectContext(ctx, &details, query, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting personal details", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get personal details for user %s: %w", userID, err)
	}
	return details, nil
}

func (s *sqlxStore) SaveEmotionAnalysis(ctx context.Context, analysis *EmotionAnalysis) error {
	if analysis == nil {
		return fmt.Errorf("cannot save nil emotion analysis")
	}
	if analysis.UserID == "" {
		return fmt.Errorf("emotion analysis must have a non-empty user_id")
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now().UTC()
	}
	analysis.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO emotion_analyses (user_id, dominant_emotion, confidence, emotions, timestamp, created_at)
        VALUES (:user_id, :dominant_emotion, :confidence, :emotions, :timestamp, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, analysis); err != nil {
		s.logger.ErrorContext(ctx, "Error saving emotion analysis", "user_id", analysis.UserID, "error", err)
		return fmt.Errorf("failed to save emotion analysis for user %s: %w", analysis.UserID, err)
	}
	return nil
}

func (s *sqlxStore) GetEmotionAnalysesSince(ctx context.Context, userID string, since time.Time) ([]*EmotionAnalysis, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var analyses []*EmotionAnalysis
	query := `SELECT id, created_at, user_id, dominant_emotion, confidence, emotions, timestamp
	          FROM emotion_analyses
	          WHERE user_id = ? AND timestamp >= ?
	          ORDER BY timestamp ASC`
	if err := s.db.SelectContext(ctx, &analyses, query, userID, since); err != nil {
		s.logger.ErrorContext(ctx, "Error getting emotion analyses", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get emotion analyses for user %s: %w", userID, err)
	}
	return analyses, nil
}

func (s *sqlxStore) SaveBiasAnalysis(ctx context.Context, analysis *BiasAnalysis) error {
	if analysis == nil {
		return fmt.Errorf("cannot save nil bias analysis")
	}
	if analysis.UserID == "" {
		return fmt.Errorf("bias analysis must have a non-empty user_id")
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now().UTC()
	}
	analysis.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO bias_analyses (user_id, toxicity_score, language, sentiment, recommendations, timestamp, created_at)
        VALUES (:user_id, :toxicity_score, :language, :sentiment, :recommendations, :timestamp, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, analysis); err != nil {
		s.logger.ErrorContext(ctx, "Error saving bias analysis", "user_id", analysis.UserID, "error", err)
		return fmt.Errorf("failed to save bias analysis for user %s: %w", analysis.UserID, err)
	}
	return nil
}

func (s *sqlxStore) GetBiasAnalysesSince(ctx context.Context, userID string, since time.Time) ([]*BiasAnalysis, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var analyses []*BiasAnalysis
	query := `SELECT id, created_at, user_id, toxicity_score, language, sentiment, recommendations, timestamp
	          FROM bias_analyses
	          WHERE user_id = ? AND timestamp >= ?
	          ORDER BY timestamp ASC`
	if err := s.db.SelectContext(ctx, &analyses, query, userID, since); err != nil {
		s.logger.ErrorContext(ctx, "Error getting bias analyses", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get bias analyses for user %s: %w", userID, err)
	}
	return analyses, nil
}

// DeleteUserData deletes a user's messages, profiles, details, and analyses
// in a single transaction so either all rows go or none do.
func (s *sqlxStore) DeleteUserData(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for user data delete", "user_id", userID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	tables := []string{"chat_messages", "style_profiles", "personal_details", "emotion_analyses", "bias_analyses"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			s.logger.ErrorContext(ctx, "Error deleting user data", "user_id", userID, "table", table, "error", err)
			return fmt.Errorf("failed to delete %s for user %s: %w", table, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user data delete: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Deleted user data", "user_id", userID)
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
// VACUUM must run outside a transaction in SQLite.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
