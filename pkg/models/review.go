package models

import "time"

const (
	// DefaultEaseFactor is assigned to new cards and used by the scheduler fallback
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the lower clamp for the ease factor
	MinEaseFactor = 1.3
)

// ReviewRecord holds the spaced repetition state embedded in every flashcard
type ReviewRecord struct {
	DueDate         time.Time  `json:"due_date" db:"due_date"`
	IntervalDays    int        `json:"interval_days" db:"interval_days"`
	EaseFactor      float64    `json:"ease_factor" db:"ease_factor"`
	RepetitionCount int        `json:"repetition_count" db:"repetition_count"`
	TimesCorrect    int        `json:"times_correct" db:"times_correct"`
	TimesIncorrect  int        `json:"times_incorrect" db:"times_incorrect"`
	LastReviewed    *time.Time `json:"last_reviewed" db:"last_reviewed"`
}

// NewReviewRecord returns the record of a card that has never been reviewed
func NewReviewRecord(now time.Time) ReviewRecord {
	return ReviewRecord{
		DueDate:      now,
		IntervalDays: 1,
		EaseFactor:   DefaultEaseFactor,
	}
}

// IsDue reports whether the card can be shown at the given time
func (r ReviewRecord) IsDue(now time.Time) bool {
	return !r.DueDate.After(now)
}

// IsNew reports whether the card has never been reviewed
func (r ReviewRecord) IsNew() bool {
	return r.RepetitionCount == 0
}
