package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// MaxHistory is the number of conversation messages kept per user
const MaxHistory = 20

var (
	// ErrWrongMode is returned when an operation is not valid in the current mode.
	// The session is left untouched.
	ErrWrongMode = errors.New("operation is not valid in the current mode")
	// ErrNoCurrentCard is returned when an answer arrives but no card is shown
	ErrNoCurrentCard = errors.New("no flashcard is awaiting an answer")
	// ErrInvalidEdit is returned when edited content does not fit the card type
	ErrInvalidEdit = errors.New("invalid flashcard edit")
	// ErrCardNotFound is returned when the edited card disappeared from the store
	ErrCardNotFound = errors.New("flashcard not found")
)

// Store is the part of the datastore used by sessions
type Store interface {
	GetFlashcard(ctx context.Context, id string) (*models.Flashcard, error)
	UpdateReviewRecord(ctx context.Context, id string, rec models.ReviewRecord) (bool, error)
	UpdateContent(ctx context.Context, id, title string, content models.Content) (bool, error)
}

// Scheduler computes the review record after an answer
type Scheduler interface {
	Review(current models.ReviewRecord, correct bool) models.ReviewRecord
}

// Machine owns the sessions of all users. Operations on one user are serialized.
type Machine struct {
	store     Store
	scheduler Scheduler
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]*userSession
}

type userSession struct {
	mu      sync.Mutex
	mode    mode
	history []Message
}

// NewMachine creates a session machine
func NewMachine(store Store, scheduler Scheduler) *Machine {
	return &Machine{
		store:     store,
		scheduler: scheduler,
		now:       time.Now,
		sessions:  make(map[int64]*userSession),
	}
}

// lock returns the user's session with its lock held; sessions are created lazily
func (m *Machine) lock(userID int64) *userSession {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &userSession{mode: &idleMode{}}
		m.sessions[userID] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	return s
}

// Step is the outcome of moving to the next card
type Step struct {
	// Card is the next card to show; nil when the session finished
	Card     *models.Flashcard
	Finished bool
	Score    int
	Total    int
}

// AnswerResult describes a checked answer
type AnswerResult struct {
	Correct       bool
	CorrectAnswer string
	Card          models.Flashcard
	Review        models.ReviewRecord
	// Saved is false when the datastore did not accept the review update
	Saved bool
	Next  Step
}

// EditResult describes a persisted edit or regeneration
type EditResult struct {
	Card models.Flashcard
	// Resumed is set when an interrupted learning session became active again
	Resumed bool
	// Current is the card awaiting an answer after resuming
	Current *models.Flashcard
}

// Mode returns the active mode of the user
func (m *Machine) Mode(userID int64) Kind {
	s := m.lock(userID)
	defer s.mu.Unlock()
	return s.mode.kind()
}

// Snapshot returns a copy of the user's session state
func (m *Machine) Snapshot(userID int64) Snapshot {
	s := m.lock(userID)
	defer s.mu.Unlock()
	return snapshotOf(s.mode)
}

// StartLearning replaces any mode with a fresh learning session over cards
func (m *Machine) StartLearning(userID int64, cards []models.Flashcard) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	queue := make([]models.Flashcard, len(cards))
	copy(queue, cards)
	s.mode = &learningMode{queue: queue}

	log.Printf("Started learning session for user %d with %d cards", userID, len(cards))
}

// Advance shows the next card, or finishes the session when the queue is empty
func (m *Machine) Advance(userID int64) (Step, error) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	l, ok := s.mode.(*learningMode)
	if !ok {
		return Step{}, ErrWrongMode
	}
	return s.advance(userID, l), nil
}

func (s *userSession) advance(userID int64, l *learningMode) Step {
	if len(l.queue) == 0 {
		s.mode = &idleMode{}
		log.Printf("Finished learning session for user %d: %d/%d", userID, l.score, l.total)
		return Step{Finished: true, Score: l.score, Total: l.total}
	}

	card := l.queue[0]
	l.queue = l.queue[1:]
	l.current = &card

	shown := card
	return Step{Card: &shown, Score: l.score, Total: l.total}
}

// SubmitAnswer checks a typed answer against the current card, reschedules it
// and advances to the next card
func (m *Machine) SubmitAnswer(ctx context.Context, userID int64, answer string) (AnswerResult, error) {
	return m.answer(ctx, userID, func(c models.Content) (bool, error) {
		return c.Check(answer), nil
	})
}

// SubmitChoice answers a multiple choice card with zero-based option indices
func (m *Machine) SubmitChoice(ctx context.Context, userID int64, selected []int) (AnswerResult, error) {
	return m.answer(ctx, userID, func(c models.Content) (bool, error) {
		mc, ok := c.(models.MultipleChoice)
		if !ok {
			return false, fmt.Errorf("%w: current card is not multiple choice", ErrWrongMode)
		}
		return mc.CheckIndices(selected), nil
	})
}

func (m *Machine) answer(ctx context.Context, userID int64, check func(models.Content) (bool, error)) (AnswerResult, error) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	l, ok := s.mode.(*learningMode)
	if !ok {
		return AnswerResult{}, ErrWrongMode
	}
	if l.current == nil || l.current.Content == nil {
		return AnswerResult{}, ErrNoCurrentCard
	}

	card := *l.current
	correct, err := check(card.Content)
	if err != nil {
		return AnswerResult{}, err
	}

	l.total++
	if correct {
		l.score++
	}

	review := m.scheduler.Review(card.Review, correct)
	card.Review = review

	saved, err := m.store.UpdateReviewRecord(ctx, card.ID, review)
	if err != nil {
		log.Printf("Error updating review record for card %s of user %d: %v", card.ID, userID, err)
		saved = false
	} else if !saved {
		log.Printf("Review record for card %s of user %d was not updated", card.ID, userID)
	}

	l.current = nil
	next := s.advance(userID, l)

	return AnswerResult{
		Correct:       correct,
		CorrectAnswer: card.Content.Answer(),
		Card:          card,
		Review:        review,
		Saved:         saved,
		Next:          next,
	}, nil
}

// StartEditing enters the editing mode for a card. A running learning session
// is suspended and resumes after the edit is applied.
func (m *Machine) StartEditing(ctx context.Context, userID int64, flashcardID string) (*models.Flashcard, error) {
	card, err := m.store.GetFlashcard(ctx, flashcardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flashcard %s: %w", flashcardID, err)
	}

	s := m.lock(userID)
	defer s.mu.Unlock()

	s.mode = &editingMode{target: card.ID, resume: suspended(s.mode)}
	return card, nil
}

// StartRegenerating enters the regeneration mode for a card
func (m *Machine) StartRegenerating(ctx context.Context, userID int64, flashcardID string) (*models.Flashcard, error) {
	card, err := m.store.GetFlashcard(ctx, flashcardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flashcard %s: %w", flashcardID, err)
	}

	s := m.lock(userID)
	defer s.mu.Unlock()

	s.mode = &regeneratingMode{target: card.ID, resume: suspended(s.mode)}
	return card, nil
}

// suspended returns the learning session to resume after an edit
func suspended(current mode) *learningMode {
	switch v := current.(type) {
	case *learningMode:
		return v
	case *editingMode:
		return v.resume
	case *regeneratingMode:
		return v.resume
	}
	return nil
}

// editPayload carries the optional new title next to the content fields
type editPayload struct {
	Title *string `json:"title"`
}

// ApplyEdit validates a JSON payload against the target card type and stores it.
// Invalid payloads keep the user in the editing mode so they can retry.
func (m *Machine) ApplyEdit(ctx context.Context, userID int64, payload []byte) (EditResult, error) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	e, ok := s.mode.(*editingMode)
	if !ok {
		return EditResult{}, ErrWrongMode
	}

	card, err := m.store.GetFlashcard(ctx, e.target)
	if err != nil {
		return EditResult{}, fmt.Errorf("failed to load flashcard %s: %w", e.target, err)
	}

	var meta editPayload
	if err := json.Unmarshal(payload, &meta); err != nil {
		return EditResult{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	content, err := models.DecodeContent(card.Type(), payload)
	if err != nil {
		return EditResult{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	if err := content.Validate(); err != nil {
		return EditResult{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}

	title := ""
	if meta.Title != nil {
		title = strings.TrimSpace(*meta.Title)
	}

	return m.persist(ctx, userID, s, card, title, content, e.resume)
}

// ApplyRegeneration stores generated replacement content for the target card
func (m *Machine) ApplyRegeneration(ctx context.Context, userID int64, title string, content models.Content) (EditResult, error) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	r, ok := s.mode.(*regeneratingMode)
	if !ok {
		return EditResult{}, ErrWrongMode
	}
	if content == nil {
		return EditResult{}, fmt.Errorf("%w: empty content", ErrInvalidEdit)
	}
	if err := content.Validate(); err != nil {
		return EditResult{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}

	card, err := m.store.GetFlashcard(ctx, r.target)
	if err != nil {
		return EditResult{}, fmt.Errorf("failed to load flashcard %s: %w", r.target, err)
	}

	return m.persist(ctx, userID, s, card, strings.TrimSpace(title), content, r.resume)
}

func (m *Machine) persist(ctx context.Context, userID int64, s *userSession, card *models.Flashcard, title string, content models.Content, resume *learningMode) (EditResult, error) {
	ok, err := m.store.UpdateContent(ctx, card.ID, title, content)
	if err != nil {
		return EditResult{}, fmt.Errorf("failed to update flashcard %s: %w", card.ID, err)
	}
	if !ok {
		return EditResult{}, fmt.Errorf("failed to update flashcard %s: %w", card.ID, ErrCardNotFound)
	}

	updated := *card
	updated.Content = content
	if title != "" {
		updated.Title = title
	}
	updated.UpdatedAt = m.now()

	res := EditResult{Card: updated}
	if resume != nil {
		resume.replaceCard(updated)
		s.mode = resume
		res.Resumed = true
		if resume.current != nil {
			c := *resume.current
			res.Current = &c
		}
	} else {
		s.mode = &idleMode{}
	}

	log.Printf("Updated flashcard %s for user %d (resumed learning: %v)", card.ID, userID, res.Resumed)
	return res, nil
}

// Clear resets the user to idle from any mode
func (m *Machine) Clear(userID int64) {
	s := m.lock(userID)
	defer s.mu.Unlock()
	s.mode = &idleMode{}
}

// PushHistory appends a conversational message; the oldest ones are evicted.
// It is only valid while idle.
func (m *Machine) PushHistory(userID int64, role, content string) error {
	s := m.lock(userID)
	defer s.mu.Unlock()

	if _, ok := s.mode.(*idleMode); !ok {
		return ErrWrongMode
	}

	s.history = append(s.history, Message{Role: role, Content: content, At: m.now()})
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = append([]Message(nil), s.history[over:]...)
	}
	return nil
}

// History returns a copy of the conversation log, oldest first
func (m *Machine) History(userID int64) []Message {
	s := m.lock(userID)
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// ClearHistory forgets the conversation log
func (m *Machine) ClearHistory(userID int64) {
	s := m.lock(userID)
	defer s.mu.Unlock()
	s.history = nil
}
