package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultModel           = "gpt-4o"
	DefaultCardsPerSession = 20
	maxCardsPerSession     = 100
)

// UserConfig represents per-user settings
type UserConfig struct {
	UserID            int64     `json:"user_id" db:"user_id"`
	Model             string    `json:"model" db:"model"`
	ConfirmFlashcards bool      `json:"confirm_flashcards" db:"confirm_flashcards"`
	CardsPerSession   int       `json:"cards_per_session" db:"cards_per_session"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultUserConfig returns the settings of a user who never changed anything
func DefaultUserConfig(userID int64) *UserConfig {
	return &UserConfig{
		UserID:          userID,
		Model:           DefaultModel,
		CardsPerSession: DefaultCardsPerSession,
	}
}

// SettingNames lists the settings a user may change, with a short description
var SettingNames = map[string]string{
	"model":              "OpenAI model used for analysis and card generation",
	"confirm_flashcards": "Whether to ask for confirmation before creating flashcards (true/false)",
	"cards_per_session":  "Number of flashcards per learning session (1-100, default: 20)",
}

// UpdateSetting parses value and applies it to the named setting
func (c *UserConfig) UpdateSetting(name, value string) error {
	value = strings.TrimSpace(value)

	switch name {
	case "model":
		if value == "" {
			return fmt.Errorf("model name cannot be empty")
		}
		c.Model = value
	case "confirm_flashcards":
		switch strings.ToLower(value) {
		case "true", "yes", "1", "on":
			c.ConfirmFlashcards = true
		case "false", "no", "0", "off":
			c.ConfirmFlashcards = false
		default:
			return fmt.Errorf("invalid boolean value: %q", value)
		}
	case "cards_per_session":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > maxCardsPerSession {
			return fmt.Errorf("cards_per_session must be a number between 1 and %d", maxCardsPerSession)
		}
		c.CardsPerSession = n
	default:
		return fmt.Errorf("unknown setting: %q", name)
	}

	return nil
}
