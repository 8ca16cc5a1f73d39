package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FlashcardType identifies the variant stored in Flashcard.Content
type FlashcardType string

const (
	TwoSidedType       FlashcardType = "two_sided"
	FillInBlankType    FlashcardType = "fill_in_blank"
	MultipleChoiceType FlashcardType = "multiple_choice"
)

// DifficultyLevel is the coarse difficulty tag used when ranking cards for a session
type DifficultyLevel string

const (
	DifficultyVeryEasy DifficultyLevel = "very_easy"
	DifficultyEasy     DifficultyLevel = "easy"
	DifficultyMedium   DifficultyLevel = "medium"
	DifficultyHard     DifficultyLevel = "hard"
	DifficultyVeryHard DifficultyLevel = "very_hard"
)

// blankMarker is the placeholder used inside FillInBlank.TextWithBlanks
const blankMarker = "{blank}"

// ErrInvalidContent is returned when a card body is missing required fields
var ErrInvalidContent = errors.New("invalid flashcard content")

// Flashcard is a single study card owned by a user
type Flashcard struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"user_id"`
	Title      string          `json:"title"`
	Tags       []string        `json:"tags"`
	Difficulty DifficultyLevel `json:"difficulty"`
	Content    Content         `json:"content"`
	Review     ReviewRecord    `json:"review"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Type returns the variant of the card body
func (f *Flashcard) Type() FlashcardType {
	if f.Content == nil {
		return ""
	}
	return f.Content.Type()
}

// FlashcardDraft is a generated card that has not been saved yet
type FlashcardDraft struct {
	Title   string
	Tags    []string
	Content Content
}

// Content is the closed set of card bodies: TwoSided, FillInBlank and MultipleChoice.
type Content interface {
	Type() FlashcardType
	// Question renders the prompt shown to the learner
	Question() string
	// Check reports whether the raw user answer is correct
	Check(answer string) bool
	// Answer renders the correct answer for feedback
	Answer() string
	Validate() error
	isContent()
}

// TwoSided is a classic front/back card
type TwoSided struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

func (TwoSided) Type() FlashcardType { return TwoSidedType }
func (TwoSided) isContent()          {}

func (c TwoSided) Question() string { return c.Front }
func (c TwoSided) Answer() string   { return c.Back }

func (c TwoSided) Check(answer string) bool {
	return normalize(answer) == normalize(c.Back)
}

func (c TwoSided) Validate() error {
	if strings.TrimSpace(c.Front) == "" || strings.TrimSpace(c.Back) == "" {
		return fmt.Errorf("%w: two-sided cards need 'front' and 'back' fields", ErrInvalidContent)
	}
	return nil
}

// FillInBlank holds a text with {blank} placeholders and one answer per blank
type FillInBlank struct {
	TextWithBlanks string   `json:"text_with_blanks"`
	Answers        []string `json:"answers"`
	CaseSensitive  bool     `json:"case_sensitive"`
}

func (FillInBlank) Type() FlashcardType { return FillInBlankType }
func (FillInBlank) isContent()          {}

func (c FillInBlank) Question() string {
	return strings.ReplaceAll(c.TextWithBlanks, blankMarker, "_____")
}

func (c FillInBlank) Answer() string { return strings.Join(c.Answers, ", ") }

// BlankCount returns the number of placeholders in the text
func (c FillInBlank) BlankCount() int {
	return strings.Count(c.TextWithBlanks, blankMarker)
}

func (c FillInBlank) Check(answer string) bool {
	given := splitBlankAnswers(answer, c.BlankCount())
	if len(given) != len(c.Answers) {
		return false
	}
	for i, want := range c.Answers {
		got := strings.TrimSpace(given[i])
		if c.CaseSensitive {
			if got != strings.TrimSpace(want) {
				return false
			}
			continue
		}
		if strings.ToLower(got) != normalize(want) {
			return false
		}
	}
	return true
}

func (c FillInBlank) Validate() error {
	if strings.TrimSpace(c.TextWithBlanks) == "" || len(c.Answers) == 0 {
		return fmt.Errorf("%w: fill-in-blank cards need 'text_with_blanks' and 'answers' fields", ErrInvalidContent)
	}
	if n := c.BlankCount(); n != len(c.Answers) {
		return fmt.Errorf("%w: %d blanks but %d answers", ErrInvalidContent, n, len(c.Answers))
	}
	return nil
}

// splitBlankAnswers splits on the first separator present and pads to the blank count
func splitBlankAnswers(input string, count int) []string {
	answers := []string{strings.TrimSpace(input)}
	for _, sep := range []string{",", ";", "|", "\n"} {
		if strings.Contains(input, sep) {
			parts := strings.Split(input, sep)
			answers = make([]string, 0, len(parts))
			for _, p := range parts {
				answers = append(answers, strings.TrimSpace(p))
			}
			break
		}
	}
	for len(answers) < count {
		answers = append(answers, "")
	}
	return answers[:count]
}

// MultipleChoice is a question with lettered options and one or more correct indices
type MultipleChoice struct {
	Prompt         string   `json:"question"`
	Options        []string `json:"options"`
	CorrectIndices []int    `json:"correct_indices"`
	AllowMultiple  bool     `json:"allow_multiple"`
}

func (MultipleChoice) Type() FlashcardType { return MultipleChoiceType }
func (MultipleChoice) isContent()          {}

func (c MultipleChoice) Question() string {
	var b strings.Builder
	b.WriteString(c.Prompt)
	b.WriteString("\n")
	for i, opt := range c.Options {
		b.WriteString(fmt.Sprintf("\n%c. %s", 'A'+rune(i), opt))
	}
	return b.String()
}

// CorrectLetters returns the letters (A, B, ...) of the correct options
func (c MultipleChoice) CorrectLetters() []string {
	letters := make([]string, 0, len(c.CorrectIndices))
	for _, idx := range c.CorrectIndices {
		letters = append(letters, string('A'+rune(idx)))
	}
	return letters
}

func (c MultipleChoice) Answer() string { return strings.Join(c.CorrectLetters(), ", ") }

func (c MultipleChoice) Check(answer string) bool {
	return c.CheckIndices(ParseChoice(answer, len(c.Options)))
}

// CheckIndices compares a selection with the correct options as a set
func (c MultipleChoice) CheckIndices(selected []int) bool {
	want := append([]int(nil), c.CorrectIndices...)
	sort.Ints(want)
	got := append([]int(nil), selected...)
	sort.Ints(got)
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func (c MultipleChoice) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" || len(c.Options) == 0 || len(c.CorrectIndices) == 0 {
		return fmt.Errorf("%w: multiple choice cards need 'question', 'options', and 'correct_indices' fields", ErrInvalidContent)
	}
	for _, idx := range c.CorrectIndices {
		if idx < 0 || idx >= len(c.Options) {
			return fmt.Errorf("%w: correct index %d out of range", ErrInvalidContent, idx)
		}
	}
	return nil
}

// ParseChoice turns "A", "a c" or "1,3" into sorted zero-based option indices.
// Letters win; digits are only considered when no letter matched.
func ParseChoice(input string, optionCount int) []int {
	input = strings.ToUpper(strings.TrimSpace(input))
	seen := make(map[int]bool)
	var selected []int

	for _, r := range input {
		if r >= 'A' && r <= 'Z' {
			idx := int(r - 'A')
			if idx < optionCount && !seen[idx] {
				seen[idx] = true
				selected = append(selected, idx)
			}
		}
	}

	if len(selected) == 0 {
		for _, r := range input {
			if r >= '1' && r <= '9' {
				idx := int(r - '1')
				if idx < optionCount && !seen[idx] {
					seen[idx] = true
					selected = append(selected, idx)
				}
			}
		}
	}

	sort.Ints(selected)
	return selected
}

// DecodeContent parses a JSON card body of the given type
func DecodeContent(t FlashcardType, raw []byte) (Content, error) {
	switch t {
	case TwoSidedType:
		var c TwoSided
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case FillInBlankType:
		var c FillInBlank
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case MultipleChoiceType:
		var c MultipleChoice
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown flashcard type: %q", t)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
