package spaced_repetition

import (
	"log"
	"math"
	"time"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

const (
	// Интервал после первого успешного повторения
	firstInterval = 1
	// Интервал после второго успешного повторения
	secondInterval = 6
	// Шаги изменения фактора легкости
	easeBonus   = 0.1
	easePenalty = 0.2
	// Верхняя граница интервала, которую еще можно представить в днях
	maxRepresentableDays = math.MaxInt32
)

// NextReview is the outcome of scheduling a single answer
type NextReview struct {
	DueDate      time.Time
	IntervalDays int
	EaseFactor   float64
}

// SM2 implements the simplified SuperMemo-2 policy used for flashcards
type SM2 struct {
	// Now is the clock used by Schedule; tests replace it
	Now func() time.Time
}

// NewSM2 создает новый экземпляр SM2 с системными часами
func NewSM2() *SM2 {
	return &SM2{Now: time.Now}
}

// Schedule computes the next review using the scheduler clock
func (sm *SM2) Schedule(current models.ReviewRecord, correct bool) NextReview {
	return ComputeNextReview(current, correct, sm.Now())
}

// Review returns the full updated record after one answer, including counters
func (sm *SM2) Review(current models.ReviewRecord, correct bool) models.ReviewRecord {
	return ApplyReview(current, correct, sm.Now())
}

// ComputeNextReview returns the next due date, interval and ease factor.
//
// Correct answers give 1 day after the first repetition, 6 after the second and
// floor(interval*ease) afterwards; ease grows by 0.1. Wrong answers reset the
// interval to 1 day and reduce ease by 0.2. Ease never drops below 1.3.
// Records that cannot be scheduled get 1 day and the default ease instead of an error.
func ComputeNextReview(current models.ReviewRecord, correct bool, now time.Time) NextReview {
	if math.IsNaN(current.EaseFactor) || math.IsInf(current.EaseFactor, 0) {
		log.Printf("Error calculating next review: invalid ease factor %v", current.EaseFactor)
		return fallback(now)
	}

	var interval int
	var ease float64

	if correct {
		switch current.RepetitionCount {
		case 0:
			interval = firstInterval
		case 1:
			interval = secondInterval
		default:
			next := math.Floor(float64(current.IntervalDays) * current.EaseFactor)
			if next < 1 || next > maxRepresentableDays {
				log.Printf("Error calculating next review: interval %v out of range", next)
				return fallback(now)
			}
			interval = int(next)
		}
		ease = math.Max(models.MinEaseFactor, current.EaseFactor+easeBonus)
	} else {
		interval = 1
		ease = math.Max(models.MinEaseFactor, current.EaseFactor-easePenalty)
	}

	return NextReview{
		DueDate:      now.AddDate(0, 0, interval),
		IntervalDays: interval,
		EaseFactor:   ease,
	}
}

// ApplyReview schedules the answer and updates the review counters
func ApplyReview(current models.ReviewRecord, correct bool, now time.Time) models.ReviewRecord {
	next := ComputeNextReview(current, correct, now)

	updated := current
	updated.DueDate = next.DueDate
	updated.IntervalDays = next.IntervalDays
	updated.EaseFactor = next.EaseFactor
	updated.RepetitionCount++
	if correct {
		updated.TimesCorrect++
	} else {
		updated.TimesIncorrect++
	}
	reviewed := now
	updated.LastReviewed = &reviewed

	return updated
}

func fallback(now time.Time) NextReview {
	return NextReview{
		DueDate:      now.AddDate(0, 0, 1),
		IntervalDays: 1,
		EaseFactor:   models.DefaultEaseFactor,
	}
}

// IsMastered determines if a card is considered "mastered"
func IsMastered(r models.ReviewRecord) bool {
	// Карточка считается выученной при высоком факторе легкости и длинном интервале
	return r.EaseFactor >= models.DefaultEaseFactor && r.IntervalDays >= 30
}
