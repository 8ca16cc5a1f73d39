package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// Store persists processed words
type Store interface {
	GetDictionaryWord(ctx context.Context, key models.DictionaryKey) (*models.DictionaryWord, error)
	PutDictionaryWord(ctx context.Context, word *models.DictionaryWord) error
}

// Cache remembers which (dictionary form, word type) pairs already produced cards.
// It reads through to the Store and keeps hits in memory.
type Cache struct {
	store Store
	now   func() time.Time

	mu      sync.RWMutex
	entries map[models.DictionaryKey]models.DictionaryWord

	// writeMu serializes read-modify-write cycles of RecordGeneration
	writeMu sync.Mutex
}

// NewCache creates a cache on top of the store
func NewCache(store Store) *Cache {
	return &Cache{
		store:   store,
		now:     time.Now,
		entries: make(map[models.DictionaryKey]models.DictionaryWord),
	}
}

// Lookup returns the entry for the key if the word was processed before
func (c *Cache) Lookup(ctx context.Context, key models.DictionaryKey) (*models.DictionaryWord, bool, error) {
	key = models.NewDictionaryKey(key.UserID, key.DictionaryForm, key.WordType)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return &entry, true, nil
	}

	stored, err := c.store.GetDictionaryWord(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up %s/%s: %w", key.DictionaryForm, key.WordType, err)
	}
	if stored == nil {
		return nil, false, nil
	}

	c.mu.Lock()
	c.entries[key] = *stored
	c.mu.Unlock()

	return stored, true, nil
}

// RecordGeneration adds count generated cards to the entry of the key.
// A missing entry is created with the given grammar; an existing one keeps its
// original grammar and only gets the counter and processed date refreshed.
func (c *Cache) RecordGeneration(ctx context.Context, key models.DictionaryKey, grammar *models.GrammarResult, count int) (*models.DictionaryWord, error) {
	key = models.NewDictionaryKey(key.UserID, key.DictionaryForm, key.WordType)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	existing, found, err := c.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	var entry models.DictionaryWord
	if found {
		entry = *existing
		entry.FlashcardsGenerated += count
		entry.ProcessedDate = now
	} else {
		payload, err := encodeGrammar(grammar)
		if err != nil {
			return nil, err
		}
		entry = models.DictionaryWord{
			UserID:              key.UserID,
			DictionaryForm:      key.DictionaryForm,
			WordType:            key.WordType,
			FlashcardsGenerated: count,
			GrammarData:         payload,
			ProcessedDate:       now,
		}
	}

	if err := c.store.PutDictionaryWord(ctx, &entry); err != nil {
		return nil, fmt.Errorf("failed to record generation for %s: %w", key.DictionaryForm, err)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	log.Printf("Recorded %d flashcards for %s (%s), total %d", count, key.DictionaryForm, key.WordType, entry.FlashcardsGenerated)
	return &entry, nil
}

func encodeGrammar(grammar *models.GrammarResult) (string, error) {
	if grammar == nil {
		return "", nil
	}
	if len(grammar.Raw) > 0 {
		return string(grammar.Raw), nil
	}
	data, err := json.Marshal(grammar)
	if err != nil {
		return "", fmt.Errorf("failed to encode grammar: %w", err)
	}
	return string(data), nil
}
