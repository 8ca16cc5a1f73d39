package bot

import (
	"time"

	"github.com/nturan/flashgram-bot-sub000/internal/excel"
	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Cards per learning session when the user has no setting
	DefaultCardsPerSession int
	// Number of recent jobs shown by /jobs
	JobsShown int
	// Users allowed to run admin commands
	AdminUserIDs []int64
	// Cells of uploaded spreadsheets turned into bulk text
	Import excel.ImportConfig
	// Time allowed for one update to be handled
	HandlerTimeout time.Duration
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		DefaultCardsPerSession: models.DefaultCardsPerSession,
		JobsShown:              5,
		Import:                 excel.DefaultImportConfig(),
		HandlerTimeout:         2 * time.Minute,
	}
}
