package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// DictionaryRepository stores words that already went through card generation
type DictionaryRepository struct {
	db *sqlx.DB
}

// NewDictionaryRepository creates a new repository instance
func NewDictionaryRepository(db *sqlx.DB) *DictionaryRepository {
	return &DictionaryRepository{db: db}
}

const dictionaryColumns = `id, user_id, dictionary_form, word_type, flashcards_generated,
	grammar_data, processed_date, created_at, updated_at`

// GetDictionaryWord returns the entry for the key, or nil if the word was never processed
func (r *DictionaryRepository) GetDictionaryWord(ctx context.Context, key models.DictionaryKey) (*models.DictionaryWord, error) {
	query := r.db.Rebind(`
		SELECT ` + dictionaryColumns + `
		FROM dictionary_words
		WHERE user_id = ? AND dictionary_form = ? AND word_type = ?
	`)

	var word models.DictionaryWord
	err := r.db.GetContext(ctx, &word, query, key.UserID, key.DictionaryForm, string(key.WordType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dictionary word: %w", err)
	}
	return &word, nil
}

// PutDictionaryWord inserts the entry or overwrites counters of an existing one.
// The stored grammar data of an existing entry is never replaced.
func (r *DictionaryRepository) PutDictionaryWord(ctx context.Context, word *models.DictionaryWord) error {
	now := time.Now().UTC()
	if word.CreatedAt.IsZero() {
		word.CreatedAt = now
	}
	word.UpdatedAt = now
	if word.ProcessedDate.IsZero() {
		word.ProcessedDate = now
	}

	query := r.db.Rebind(`
		INSERT INTO dictionary_words (
			user_id, dictionary_form, word_type, flashcards_generated,
			grammar_data, processed_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, dictionary_form, word_type) DO UPDATE SET
			flashcards_generated = excluded.flashcards_generated,
			processed_date = excluded.processed_date,
			updated_at = excluded.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		word.UserID,
		word.DictionaryForm,
		string(word.WordType),
		word.FlashcardsGenerated,
		word.GrammarData,
		word.ProcessedDate.UTC(),
		word.CreatedAt.UTC(),
		word.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dictionary word: %w", err)
	}
	return nil
}

// ListRecentWords returns the most recently processed words of a user
func (r *DictionaryRepository) ListRecentWords(ctx context.Context, userID int64, limit int) ([]models.DictionaryWord, error) {
	query := r.db.Rebind(`
		SELECT ` + dictionaryColumns + `
		FROM dictionary_words
		WHERE user_id = ?
		ORDER BY processed_date DESC
		LIMIT ?
	`)

	var words []models.DictionaryWord
	if err := r.db.SelectContext(ctx, &words, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list dictionary words: %w", err)
	}
	return words, nil
}

// GetDictionaryStats counts processed words per type and the cards made from them
func (r *DictionaryRepository) GetDictionaryStats(ctx context.Context, userID int64) (*DictionaryStats, error) {
	query := r.db.Rebind(`
		SELECT word_type, COUNT(*) AS words, COALESCE(SUM(flashcards_generated), 0) AS cards
		FROM dictionary_words
		WHERE user_id = ?
		GROUP BY word_type
	`)

	var rows []struct {
		WordType string `db:"word_type"`
		Words    int    `db:"words"`
		Cards    int    `db:"cards"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get dictionary stats: %w", err)
	}

	stats := &DictionaryStats{ByType: make(map[models.WordType]int)}
	for _, row := range rows {
		stats.ByType[models.WordType(row.WordType)] += row.Words
		stats.TotalWords += row.Words
		stats.TotalFlashcards += row.Cards
	}
	return stats, nil
}
