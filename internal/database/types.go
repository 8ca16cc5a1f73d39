package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// flashcardRow is the flat representation of a flashcard in the flashcards table
type flashcardRow struct {
	ID              string       `db:"id"`
	UserID          int64        `db:"user_id"`
	CardType        string       `db:"card_type"`
	Title           string       `db:"title"`
	Tags            string       `db:"tags"`
	Difficulty      string       `db:"difficulty"`
	Content         string       `db:"content"`
	DueDate         time.Time    `db:"due_date"`
	IntervalDays    int          `db:"interval_days"`
	EaseFactor      float64      `db:"ease_factor"`
	RepetitionCount int          `db:"repetition_count"`
	TimesCorrect    int          `db:"times_correct"`
	TimesIncorrect  int          `db:"times_incorrect"`
	LastReviewed    sql.NullTime `db:"last_reviewed"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

const flashcardColumns = `id, user_id, card_type, title, tags, difficulty, content,
	due_date, interval_days, ease_factor, repetition_count, times_correct, times_incorrect,
	last_reviewed, created_at, updated_at`

func newFlashcardRow(card *models.Flashcard) (*flashcardRow, error) {
	if card.Content == nil {
		return nil, fmt.Errorf("flashcard %s has no content", card.ID)
	}
	content, err := json.Marshal(card.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	tagData, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	row := &flashcardRow{
		ID:              card.ID,
		UserID:          card.UserID,
		CardType:        string(card.Type()),
		Title:           card.Title,
		Tags:            string(tagData),
		Difficulty:      string(card.Difficulty),
		Content:         string(content),
		DueDate:         card.Review.DueDate.UTC(),
		IntervalDays:    card.Review.IntervalDays,
		EaseFactor:      card.Review.EaseFactor,
		RepetitionCount: card.Review.RepetitionCount,
		TimesCorrect:    card.Review.TimesCorrect,
		TimesIncorrect:  card.Review.TimesIncorrect,
		CreatedAt:       card.CreatedAt.UTC(),
		UpdatedAt:       card.UpdatedAt.UTC(),
	}
	if card.Review.LastReviewed != nil {
		row.LastReviewed = sql.NullTime{Time: card.Review.LastReviewed.UTC(), Valid: true}
	}
	if row.Difficulty == "" {
		row.Difficulty = string(models.DifficultyMedium)
	}
	return row, nil
}

func (r *flashcardRow) toModel() (*models.Flashcard, error) {
	content, err := models.DecodeContent(models.FlashcardType(r.CardType), []byte(r.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to decode flashcard %s: %w", r.ID, err)
	}
	var tags []string
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of flashcard %s: %w", r.ID, err)
		}
	}

	card := &models.Flashcard{
		ID:         r.ID,
		UserID:     r.UserID,
		Title:      r.Title,
		Tags:       tags,
		Difficulty: models.DifficultyLevel(r.Difficulty),
		Content:    content,
		Review: models.ReviewRecord{
			DueDate:         r.DueDate,
			IntervalDays:    r.IntervalDays,
			EaseFactor:      r.EaseFactor,
			RepetitionCount: r.RepetitionCount,
			TimesCorrect:    r.TimesCorrect,
			TimesIncorrect:  r.TimesIncorrect,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LastReviewed.Valid {
		t := r.LastReviewed.Time
		card.Review.LastReviewed = &t
	}
	return card, nil
}

// Dashboard is a per-user summary of the deck
type Dashboard struct {
	Total       int `db:"total"`
	DueToday    int `db:"due_today"`
	DueThisWeek int `db:"due_this_week"`
	New         int `db:"new_cards"`
	Mastered    int `db:"mastered"`
}

// DictionaryStats summarizes processed words for a user
type DictionaryStats struct {
	TotalWords      int
	TotalFlashcards int
	ByType          map[models.WordType]int
}
