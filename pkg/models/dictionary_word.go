package models

import (
	"strings"
	"time"
)

// DictionaryKey identifies a processed word. DictionaryForm is always lower-cased.
type DictionaryKey struct {
	UserID         int64
	DictionaryForm string
	WordType       WordType
}

// NewDictionaryKey normalizes the dictionary form
func NewDictionaryKey(userID int64, dictionaryForm string, wordType WordType) DictionaryKey {
	return DictionaryKey{
		UserID:         userID,
		DictionaryForm: strings.ToLower(strings.TrimSpace(dictionaryForm)),
		WordType:       wordType,
	}
}

// DictionaryWord tracks a word that already went through card generation
type DictionaryWord struct {
	ID                  int64     `json:"id" db:"id"`
	UserID              int64     `json:"user_id" db:"user_id"`
	DictionaryForm      string    `json:"dictionary_form" db:"dictionary_form"`
	WordType            WordType  `json:"word_type" db:"word_type"`
	FlashcardsGenerated int       `json:"flashcards_generated" db:"flashcards_generated"`
	GrammarData         string    `json:"grammar_data" db:"grammar_data"`
	ProcessedDate       time.Time `json:"processed_date" db:"processed_date"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Key returns the dedup key of the entry
func (w *DictionaryWord) Key() DictionaryKey {
	return NewDictionaryKey(w.UserID, w.DictionaryForm, w.WordType)
}
