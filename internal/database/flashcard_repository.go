package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// FlashcardRepository handles database operations for flashcards
type FlashcardRepository struct {
	db *sqlx.DB
	// now is replaced in tests
	now func() time.Time
}

// NewFlashcardRepository creates a new repository instance
func NewFlashcardRepository(db *sqlx.DB) *FlashcardRepository {
	return &FlashcardRepository{db: db, now: time.Now}
}

// SaveFlashcard inserts a new flashcard and returns its ID.
// Cards without an ID get a random UUID; cards without a review record become due immediately.
func (r *FlashcardRepository) SaveFlashcard(ctx context.Context, card *models.Flashcard) (string, error) {
	now := r.now().UTC()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Review.EaseFactor == 0 {
		card.Review = models.NewReviewRecord(now)
	}
	if card.Difficulty == "" {
		card.Difficulty = models.DifficultyMedium
	}
	card.CreatedAt = now
	card.UpdatedAt = now

	row, err := newFlashcardRow(card)
	if err != nil {
		return "", err
	}

	query := r.db.Rebind(`
		INSERT INTO flashcards (` + flashcardColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = r.db.ExecContext(ctx, query,
		row.ID, row.UserID, row.CardType, row.Title, row.Tags, row.Difficulty, row.Content,
		row.DueDate, row.IntervalDays, row.EaseFactor, row.RepetitionCount,
		row.TimesCorrect, row.TimesIncorrect, row.LastReviewed, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save flashcard: %w", err)
	}

	return card.ID, nil
}

// GetFlashcard returns a flashcard by ID
func (r *FlashcardRepository) GetFlashcard(ctx context.Context, id string) (*models.Flashcard, error) {
	var row flashcardRow
	query := r.db.Rebind(`SELECT ` + flashcardColumns + ` FROM flashcards WHERE id = ?`)
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard by ID: %w", err)
	}
	return row.toModel()
}

// GetDueFlashcards returns cards whose due date has passed, oldest first
func (r *FlashcardRepository) GetDueFlashcards(ctx context.Context, userID int64, now time.Time, limit int) ([]models.Flashcard, error) {
	query := r.db.Rebind(`
		SELECT ` + flashcardColumns + `
		FROM flashcards
		WHERE user_id = ? AND due_date <= ?
		ORDER BY due_date ASC
		LIMIT ?
	`)
	return r.selectCards(ctx, query, userID, now.UTC(), limit)
}

// GetUpcomingFlashcards returns cards that are not due yet, soonest first
func (r *FlashcardRepository) GetUpcomingFlashcards(ctx context.Context, userID int64, now time.Time, limit int) ([]models.Flashcard, error) {
	query := r.db.Rebind(`
		SELECT ` + flashcardColumns + `
		FROM flashcards
		WHERE user_id = ? AND due_date > ?
		ORDER BY due_date ASC
		LIMIT ?
	`)
	return r.selectCards(ctx, query, userID, now.UTC(), limit)
}

// ListFlashcards returns a page of the user's cards, newest first
func (r *FlashcardRepository) ListFlashcards(ctx context.Context, userID int64, limit, offset int) ([]models.Flashcard, error) {
	query := r.db.Rebind(`
		SELECT ` + flashcardColumns + `
		FROM flashcards
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`)
	return r.selectCards(ctx, query, userID, limit, offset)
}

func (r *FlashcardRepository) selectCards(ctx context.Context, query string, args ...interface{}) ([]models.Flashcard, error) {
	var rows []flashcardRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get flashcards: %w", err)
	}

	cards := make([]models.Flashcard, 0, len(rows))
	for i := range rows {
		card, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, nil
}

// UpdateReviewRecord stores the scheduling state of a card.
// It returns false when no card matched the ID.
func (r *FlashcardRepository) UpdateReviewRecord(ctx context.Context, id string, rec models.ReviewRecord) (bool, error) {
	var lastReviewed sql.NullTime
	if rec.LastReviewed != nil {
		lastReviewed = sql.NullTime{Time: rec.LastReviewed.UTC(), Valid: true}
	}

	query := r.db.Rebind(`
		UPDATE flashcards SET
			due_date = ?,
			interval_days = ?,
			ease_factor = ?,
			repetition_count = ?,
			times_correct = ?,
			times_incorrect = ?,
			last_reviewed = ?,
			updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		rec.DueDate.UTC(),
		rec.IntervalDays,
		rec.EaseFactor,
		rec.RepetitionCount,
		rec.TimesCorrect,
		rec.TimesIncorrect,
		lastReviewed,
		r.now().UTC(),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update review record: %w", err)
	}
	return affected(result)
}

// UpdateContent replaces the body of a card; an empty title keeps the old one.
// The card type may change, e.g. after regeneration.
func (r *FlashcardRepository) UpdateContent(ctx context.Context, id, title string, content models.Content) (bool, error) {
	if content == nil {
		return false, fmt.Errorf("failed to update flashcard %s: empty content", id)
	}
	card := &models.Flashcard{ID: id, Content: content}
	row, err := newFlashcardRow(card)
	if err != nil {
		return false, err
	}

	query := r.db.Rebind(`
		UPDATE flashcards SET
			card_type = ?,
			content = ?,
			title = CASE WHEN ? = '' THEN title ELSE ? END,
			updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, row.CardType, row.Content, title, title, r.now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update flashcard content: %w", err)
	}
	return affected(result)
}

// DeleteFlashcard removes a card owned by the user
func (r *FlashcardRepository) DeleteFlashcard(ctx context.Context, userID int64, id string) (bool, error) {
	query := r.db.Rebind(`DELETE FROM flashcards WHERE id = ? AND user_id = ?`)
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete flashcard: %w", err)
	}
	return affected(result)
}

// GetDashboard counts the user's cards by review state
func (r *FlashcardRepository) GetDashboard(ctx context.Context, userID int64, now time.Time) (*Dashboard, error) {
	now = now.UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
	endOfWeek := endOfDay.AddDate(0, 0, 7)

	query := r.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN due_date <= ? THEN 1 ELSE 0 END), 0) AS due_today,
			COALESCE(SUM(CASE WHEN due_date <= ? THEN 1 ELSE 0 END), 0) AS due_this_week,
			COALESCE(SUM(CASE WHEN repetition_count = 0 THEN 1 ELSE 0 END), 0) AS new_cards,
			COALESCE(SUM(CASE WHEN ease_factor >= ? AND interval_days >= 30 THEN 1 ELSE 0 END), 0) AS mastered
		FROM flashcards
		WHERE user_id = ?
	`)

	var d Dashboard
	if err := r.db.GetContext(ctx, &d, query, endOfDay, endOfWeek, models.DefaultEaseFactor, userID); err != nil {
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return &d, nil
}

// CountUsersWithDueCards returns user IDs and the number of their due cards
func (r *FlashcardRepository) CountUsersWithDueCards(ctx context.Context, now time.Time) (map[int64]int, error) {
	query := r.db.Rebind(`
		SELECT user_id, COUNT(*) AS due
		FROM flashcards
		WHERE due_date <= ?
		GROUP BY user_id
	`)

	var rows []struct {
		UserID int64 `db:"user_id"`
		Due    int   `db:"due"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to count due cards: %w", err)
	}

	result := make(map[int64]int, len(rows))
	for _, row := range rows {
		result[row.UserID] = row.Due
	}
	return result, nil
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
