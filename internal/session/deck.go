package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nturan/flashgram-bot-sub000/internal/spaced_repetition"
	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// DeckSource reads candidate cards for a learning session
type DeckSource interface {
	GetDueFlashcards(ctx context.Context, userID int64, now time.Time, limit int) ([]models.Flashcard, error)
	GetUpcomingFlashcards(ctx context.Context, userID int64, now time.Time, limit int) ([]models.Flashcard, error)
}

// BuildDeck selects up to limit cards: due cards first, topped up with the
// cards that become due soonest, then ordered by priority
func BuildDeck(ctx context.Context, src DeckSource, userID int64, limit int, now time.Time) ([]models.Flashcard, error) {
	if limit <= 0 {
		limit = models.DefaultCardsPerSession
	}

	cards, err := src.GetDueFlashcards(ctx, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due flashcards: %w", err)
	}

	if len(cards) < limit {
		extra, err := src.GetUpcomingFlashcards(ctx, userID, now, limit-len(cards))
		if err != nil {
			return nil, fmt.Errorf("failed to get upcoming flashcards: %w", err)
		}
		seen := make(map[string]bool, len(cards))
		for _, c := range cards {
			seen[c.ID] = true
		}
		for _, c := range extra {
			if !seen[c.ID] {
				cards = append(cards, c)
			}
		}
	}

	return spaced_repetition.PrioritizeForSession(cards, limit, now), nil
}
