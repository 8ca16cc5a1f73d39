package session

import (
	"time"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// Kind names the active interaction mode of a user
type Kind string

const (
	Idle         Kind = "idle"
	Learning     Kind = "learning"
	Editing      Kind = "editing"
	Regenerating Kind = "regenerating"
)

// mode is the closed set of session states; exactly one is active per user
type mode interface {
	kind() Kind
}

type idleMode struct{}

type learningMode struct {
	queue   []models.Flashcard
	current *models.Flashcard
	score   int
	total   int
}

// editingMode keeps the interrupted learning session, if any, to resume it afterwards
type editingMode struct {
	target string
	resume *learningMode
}

type regeneratingMode struct {
	target string
	resume *learningMode
}

func (idleMode) kind() Kind         { return Idle }
func (learningMode) kind() Kind     { return Learning }
func (editingMode) kind() Kind      { return Editing }
func (regeneratingMode) kind() Kind { return Regenerating }

// replaceCard updates the in-memory copies of an edited card
func (l *learningMode) replaceCard(card models.Flashcard) {
	if l.current != nil && l.current.ID == card.ID {
		c := card
		l.current = &c
	}
	for i := range l.queue {
		if l.queue[i].ID == card.ID {
			l.queue[i] = card
		}
	}
}

// Message is one entry of the conversational history
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Snapshot is a read-only view of a session
type Snapshot struct {
	Mode      Kind
	Current   *models.Flashcard
	Remaining int
	Score     int
	Total     int
	// TargetID is the card being edited or regenerated
	TargetID string
	// Resumable is set while a learning session is suspended by an edit
	Resumable bool
}

func snapshotOf(m mode) Snapshot {
	s := Snapshot{Mode: m.kind()}
	var l *learningMode

	switch v := m.(type) {
	case *learningMode:
		l = v
	case *editingMode:
		s.TargetID = v.target
		s.Resumable = v.resume != nil
		l = v.resume
	case *regeneratingMode:
		s.TargetID = v.target
		s.Resumable = v.resume != nil
		l = v.resume
	}

	if l != nil {
		s.Remaining = len(l.queue)
		s.Score = l.score
		s.Total = l.total
		if v, ok := m.(*learningMode); ok && v.current != nil {
			c := *v.current
			s.Current = &c
		}
	}
	return s
}
