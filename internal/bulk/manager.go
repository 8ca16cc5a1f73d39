package bulk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Failure reasons recorded in FailedWord.Reason; other failures carry the error text
const (
	ReasonAnalysisFailed   = "analysis_failed"
	ReasonGenerationFailed = "flashcard_generation_failed"
)

var (
	// ErrJobNotFound is returned for unknown or already cleaned up jobs
	ErrJobNotFound = errors.New("job not found")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("bulk manager is closed")
)

// Generator turns a word into grammar and the grammar into card drafts
type Generator interface {
	Analyze(ctx context.Context, word string) (*models.GrammarResult, error)
	GenerateCards(ctx context.Context, grammar *models.GrammarResult, focus []string) ([]models.FlashcardDraft, error)
}

// CardStore persists generated cards
type CardStore interface {
	SaveFlashcard(ctx context.Context, card *models.Flashcard) (string, error)
}

// Deduplicator gates the generator for words that were already processed
type Deduplicator interface {
	Lookup(ctx context.Context, key models.DictionaryKey) (*models.DictionaryWord, bool, error)
	RecordGeneration(ctx context.Context, key models.DictionaryKey, grammar *models.GrammarResult, count int) (*models.DictionaryWord, error)
}

// Options controls batching
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
}

// DefaultOptions processes three words at a time with a one second pause
func DefaultOptions() Options {
	return Options{BatchSize: 3, BatchDelay: time.Second}
}

// FailedWord is a word that could not be turned into cards
type FailedWord struct {
	Word   string `json:"word"`
	Reason string `json:"reason"`
}

// JobSnapshot is a read-only copy of a job's progress
type JobSnapshot struct {
	JobID               string                  `json:"job_id"`
	UserID              int64                   `json:"user_id"`
	Status              Status                  `json:"status"`
	ProgressPercentage  float64                 `json:"progress_percentage"`
	TotalWords          int                     `json:"total_words"`
	ProcessedWords      int                     `json:"processed_words"`
	GeneratedFlashcards int                     `json:"generated_flashcards"`
	SkippedWords        int                     `json:"skipped_words"`
	FailedWords         []FailedWord            `json:"failed_words"`
	ProcessedWordTypes  map[models.WordType]int `json:"processed_word_types"`
	ErrorMessage        string                  `json:"error_message,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	CompletedAt         *time.Time              `json:"completed_at,omitempty"`
}

// IsFinished reports whether the job reached a terminal state
func (s JobSnapshot) IsFinished() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

type job struct {
	id          string
	userID      int64
	words       []string
	status      Status
	processed   int
	generated   int
	skipped     int
	failed      []FailedWord
	wordTypes   map[models.WordType]int
	errMessage  string
	createdAt   time.Time
	completedAt *time.Time
}

// Manager runs bulk ingestion jobs in the background
type Manager struct {
	generator Generator
	cards     CardStore
	dedup     Deduplicator
	opts      Options
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	active    map[string]*job
	completed map[string]*job
	closed    bool
}

// NewManager creates a job manager
func NewManager(generator Generator, cards CardStore, dedup Deduplicator, opts Options) *Manager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		generator: generator,
		cards:     cards,
		dedup:     dedup,
		opts:      opts,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*job),
		completed: make(map[string]*job),
	}
}

// Submit extracts words from the text and starts a background job.
// It returns the job ID without waiting for processing.
func (m *Manager) Submit(text string, userID int64) (string, error) {
	words := ExtractWords(text)

	j := &job{
		id:        uuid.NewString(),
		userID:    userID,
		words:     words,
		status:    StatusPending,
		wordTypes: make(map[models.WordType]int),
		createdAt: m.now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.active[j.id] = j
	m.wg.Add(1)
	m.mu.Unlock()

	log.Printf("Started bulk processing job %s for user %d with %d words", j.id, userID, len(words))

	go m.run(j)

	return j.id, nil
}

// Status returns a snapshot of the job
func (m *Manager) Status(jobID string) (JobSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.active[jobID]
	if !ok {
		j, ok = m.completed[jobID]
	}
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// ListJobs returns active and finished jobs of the user, newest first
func (m *Manager) ListJobs(userID int64) []JobSnapshot {
	m.mu.RLock()
	var jobs []JobSnapshot
	for _, set := range []map[string]*job{m.active, m.completed} {
		for _, j := range set {
			if j.userID == userID {
				jobs = append(jobs, j.snapshot())
			}
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return jobs
}

// Cleanup removes finished jobs that completed more than maxAge ago
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := m.now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, j := range m.completed {
		if j.completedAt != nil && j.completedAt.Before(cutoff) {
			delete(m.completed, id)
			removed++
			log.Printf("Cleaned up old job %s", id)
		}
	}
	return removed
}

// Wait blocks until every submitted job has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops accepting jobs, interrupts running ones and waits for them
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run(j *job) {
	defer m.wg.Done()

	err := m.process(j)

	m.mu.Lock()
	now := m.now().UTC()
	j.completedAt = &now
	if err != nil {
		j.status = StatusFailed
		j.errMessage = err.Error()
	} else {
		j.status = StatusCompleted
	}
	delete(m.active, j.id)
	m.completed[j.id] = j
	generated, processed := j.generated, j.processed
	m.mu.Unlock()

	if err != nil {
		log.Printf("Error in bulk processing job %s: %v", j.id, err)
		return
	}
	log.Printf("Completed bulk processing job %s: %d flashcards generated from %d words", j.id, generated, processed)
}

func (m *Manager) process(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	m.mu.Lock()
	j.status = StatusProcessing
	m.mu.Unlock()

	for start := 0; start < len(j.words); start += m.opts.BatchSize {
		end := start + m.opts.BatchSize
		if end > len(j.words) {
			end = len(j.words)
		}

		for _, word := range j.words[start:end] {
			if err := m.ctx.Err(); err != nil {
				return err
			}
			m.processWord(j, word)
		}

		if end < len(j.words) && m.opts.BatchDelay > 0 {
			select {
			case <-m.ctx.Done():
				return m.ctx.Err()
			case <-time.After(m.opts.BatchDelay):
			}
		}
	}

	return nil
}

// processWord never fails the job; problems end up in failed words
func (m *Manager) processWord(j *job, word string) {
	res := m.generateWord(j, word)

	m.mu.Lock()
	defer m.mu.Unlock()

	j.processed++
	j.generated += res.saved
	switch {
	case res.skipped:
		j.skipped++
	case res.saved > 0:
		j.wordTypes[res.wordType]++
	}
	if res.reason != "" {
		j.failed = append(j.failed, FailedWord{Word: word, Reason: res.reason})
	}
}

type wordResult struct {
	saved    int
	skipped  bool
	wordType models.WordType
	reason   string
}

func (m *Manager) generateWord(j *job, word string) (res wordResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Job %s: Error processing word '%s': %v", j.id, word, r)
			res.reason = fmt.Sprint(r)
		}
	}()

	ctx := m.ctx

	grammar, err := m.generator.Analyze(ctx, word)
	if err != nil || grammar == nil || strings.TrimSpace(grammar.DictionaryForm) == "" {
		log.Printf("Job %s: Failed to analyze word '%s': %v", j.id, word, err)
		return wordResult{reason: ReasonAnalysisFailed}
	}

	key := models.NewDictionaryKey(j.userID, grammar.DictionaryForm, grammar.WordType)
	if _, found, err := m.dedup.Lookup(ctx, key); err != nil {
		log.Printf("Job %s: Error processing word '%s': %v", j.id, word, err)
		return wordResult{reason: err.Error()}
	} else if found {
		log.Printf("Job %s: Word '%s' (%s) already processed, skipping", j.id, key.DictionaryForm, key.WordType)
		return wordResult{skipped: true, wordType: key.WordType}
	}

	drafts, err := m.generator.GenerateCards(ctx, grammar, nil)
	if err != nil || len(drafts) == 0 {
		log.Printf("Job %s: Failed to generate flashcards for word '%s': %v", j.id, word, err)
		return wordResult{reason: ReasonGenerationFailed}
	}

	res.wordType = key.WordType
	for _, draft := range drafts {
		card := &models.Flashcard{
			UserID:  j.userID,
			Title:   draft.Title,
			Tags:    draft.Tags,
			Content: draft.Content,
		}
		if _, err := m.cards.SaveFlashcard(ctx, card); err != nil {
			log.Printf("Job %s: Error saving flashcard for word '%s': %v", j.id, word, err)
			res.reason = err.Error()
			break
		}
		res.saved++
	}

	if res.saved > 0 {
		if _, err := m.dedup.RecordGeneration(ctx, key, grammar, res.saved); err != nil {
			log.Printf("Job %s: Error recording word '%s': %v", j.id, word, err)
			if res.reason == "" {
				res.reason = err.Error()
			}
		}
		log.Printf("Job %s: Generated %d flashcards for word '%s'", j.id, res.saved, word)
	}

	return res
}

func (j *job) snapshot() JobSnapshot {
	s := JobSnapshot{
		JobID:               j.id,
		UserID:              j.userID,
		Status:              j.status,
		TotalWords:          len(j.words),
		ProcessedWords:      j.processed,
		GeneratedFlashcards: j.generated,
		SkippedWords:        j.skipped,
		FailedWords:         append([]FailedWord(nil), j.failed...),
		ProcessedWordTypes:  make(map[models.WordType]int, len(j.wordTypes)),
		ErrorMessage:        j.errMessage,
		CreatedAt:           j.createdAt,
	}
	for t, n := range j.wordTypes {
		s.ProcessedWordTypes[t] = n
	}
	if j.completedAt != nil {
		completed := *j.completedAt
		s.CompletedAt = &completed
	}
	if s.TotalWords > 0 {
		s.ProgressPercentage = math.Round(float64(s.ProcessedWords)/float64(s.TotalWords)*1000) / 10
	}
	return s
}
