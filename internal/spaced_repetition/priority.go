package spaced_repetition

import (
	"sort"
	"time"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// Веса сложности при выборе карточек для сессии
var difficultyWeights = map[models.DifficultyLevel]float64{
	models.DifficultyVeryHard: 100,
	models.DifficultyHard:     75,
	models.DifficultyMedium:   50,
	models.DifficultyEasy:     25,
	models.DifficultyVeryEasy: 10,
}

// PriorityScore ranks a card for a learning session; higher is more urgent
func PriorityScore(card models.Flashcard, now time.Time) float64 {
	score := 0.0
	r := card.Review

	// Overdue cards get highest priority
	if r.IsDue(now) {
		daysOverdue := int(now.Sub(r.DueDate).Hours() / 24)
		score += 1000 + float64(daysOverdue)*10
	}

	if w, ok := difficultyWeights[card.Difficulty]; ok {
		score += w
	} else {
		score += difficultyWeights[models.DifficultyMedium]
	}

	// Cards with low ease factor need more practice
	if r.EaseFactor < 2.0 {
		score += 50
	}
	if r.IsNew() {
		score += 30
	}
	if r.TimesIncorrect > r.TimesCorrect {
		score += 25
	}

	return score
}

// PrioritizeForSession sorts cards by priority and keeps at most limit of them.
// Ties keep their original order.
func PrioritizeForSession(cards []models.Flashcard, limit int, now time.Time) []models.Flashcard {
	sorted := make([]models.Flashcard, len(cards))
	copy(sorted, cards)

	sort.SliceStable(sorted, func(i, j int) bool {
		return PriorityScore(sorted[i], now) > PriorityScore(sorted[j], now)
	})

	if limit >= 0 && len(sorted) > limit {
		return sorted[:limit]
	}
	return sorted
}

// DeckStats summarizes a set of cards for session planning
type DeckStats struct {
	Total                  int
	DueNow                 int
	Overdue                int
	New                    int
	Difficult              int
	AverageEase            float64
	DifficultyDistribution map[models.DifficultyLevel]int
}

// SessionStatistics computes DeckStats for the given cards
func SessionStatistics(cards []models.Flashcard, now time.Time) DeckStats {
	stats := DeckStats{
		Total:                  len(cards),
		DifficultyDistribution: make(map[models.DifficultyLevel]int),
	}
	if len(cards) == 0 {
		return stats
	}

	easeSum := 0.0
	for _, card := range cards {
		r := card.Review
		if r.IsDue(now) {
			stats.DueNow++
			if now.Sub(r.DueDate) >= 24*time.Hour {
				stats.Overdue++
			}
		}
		if r.IsNew() {
			stats.New++
		}
		if r.EaseFactor < 2.0 || r.TimesIncorrect > r.TimesCorrect {
			stats.Difficult++
		}
		easeSum += r.EaseFactor
		stats.DifficultyDistribution[card.Difficulty]++
	}
	stats.AverageEase = easeSum / float64(len(cards))

	return stats
}
