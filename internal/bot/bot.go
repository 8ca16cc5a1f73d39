package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nturan/flashgram-bot-sub000/internal/ai"
	"github.com/nturan/flashgram-bot-sub000/internal/bulk"
	"github.com/nturan/flashgram-bot-sub000/internal/database"
	"github.com/nturan/flashgram-bot-sub000/internal/session"
	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// telegramAPI is the part of tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// CardRepository is the flashcard storage used by the bot
type CardRepository interface {
	session.Store
	session.DeckSource
	DeleteFlashcard(ctx context.Context, userID int64, id string) (bool, error)
	ListFlashcards(ctx context.Context, userID int64, limit, offset int) ([]models.Flashcard, error)
	GetDashboard(ctx context.Context, userID int64, now time.Time) (*database.Dashboard, error)
}

// ConfigRepository stores per-user settings
type ConfigRepository interface {
	GetUserConfig(ctx context.Context, userID int64) (*models.UserConfig, error)
	UpdateSetting(ctx context.Context, userID int64, name, value string) (*models.UserConfig, error)
}

// DictionaryReader reports processed word statistics
type DictionaryReader interface {
	GetDictionaryStats(ctx context.Context, userID int64) (*database.DictionaryStats, error)
	ListRecentWords(ctx context.Context, userID int64, limit int) ([]models.DictionaryWord, error)
}

// JobManager runs bulk ingestion jobs
type JobManager interface {
	Submit(text string, userID int64) (string, error)
	Status(jobID string) (bulk.JobSnapshot, error)
	ListJobs(userID int64) []bulk.JobSnapshot
	Cleanup(maxAge time.Duration) int
}

// Regenerator rewrites a card from the learner's instructions
type Regenerator interface {
	RegenerateCard(ctx context.Context, card *models.Flashcard, instructions string) (models.FlashcardDraft, error)
}

// Tutor answers free-form messages that are not word lists
type Tutor interface {
	Converse(ctx context.Context, history []ai.ChatTurn, message string) (string, error)
}

// ReminderChecker sends a due-cards reminder to one user on demand
type ReminderChecker interface {
	RunManualCheck(ctx context.Context, userID int64) error
}

// Deps are the collaborators of the bot
type Deps struct {
	Cards      CardRepository
	Configs    ConfigRepository
	Dictionary DictionaryReader
	Jobs       JobManager
	Sessions   *session.Machine
	// Regenerator returns the generator for the user's configured model
	Regenerator func(model string) Regenerator
	// Tutor returns the conversational tutor for the user's configured model
	Tutor  func(model string) Tutor
	Config *BotConfig
}

// Bot represents the Telegram bot application
type Bot struct {
	api          telegramAPI
	cards        CardRepository
	configs      ConfigRepository
	dictionary   DictionaryReader
	jobs         JobManager
	sessions     *session.Machine
	regenerator  func(model string) Regenerator
	tutor        func(model string) Tutor
	reminders    ReminderChecker
	config       *BotConfig
	adminUserIDs map[int64]bool
	now          func() time.Time

	// Тексты, ожидающие подтверждения перед запуском bulk-задачи
	pendingMu   sync.Mutex
	pendingBulk map[int64]string

	// Очереди обновлений по пользователям, пока работает обработчик
	queueMu   sync.Mutex
	queues    map[int64][]tgbotapi.Update
	receiving sync.WaitGroup
	handlers  sync.WaitGroup
}

// New creates a new bot instance
func New(token string, deps Deps) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	log.Printf("Authorized on account %s", botAPI.Self.UserName)

	return newBot(botAPI, deps), nil
}

func newBot(api telegramAPI, deps Deps) *Bot {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := &Bot{
		api:          api,
		cards:        deps.Cards,
		configs:      deps.Configs,
		dictionary:   deps.Dictionary,
		jobs:         deps.Jobs,
		sessions:     deps.Sessions,
		regenerator:  deps.Regenerator,
		tutor:        deps.Tutor,
		config:       cfg,
		adminUserIDs: make(map[int64]bool),
		now:          time.Now,
		pendingBulk:  make(map[int64]string),
		queues:       make(map[int64][]tgbotapi.Update),
	}
	for _, id := range cfg.AdminUserIDs {
		b.adminUserIDs[id] = true
	}
	return b
}

// SetReminders connects the scheduler used by the admin /remind command.
// It must be called before Start.
func (b *Bot) SetReminders(r ReminderChecker) {
	b.reminders = r
}

// Start receives updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	b.receiving.Add(1)
	defer b.receiving.Done()

	// Set up the update configuration
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch queues the update behind earlier updates of the same user.
// Updates of different users are handled in parallel.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	userID := updateUserID(update)

	b.queueMu.Lock()
	pending, running := b.queues[userID]
	b.queues[userID] = append(pending, update)
	if !running {
		b.handlers.Add(1)
	}
	b.queueMu.Unlock()

	if !running {
		go b.drain(ctx, userID)
	}
}

// drain handles the user's queued updates in order and exits when the queue is empty
func (b *Bot) drain(ctx context.Context, userID int64) {
	defer b.handlers.Done()
	for {
		b.queueMu.Lock()
		pending := b.queues[userID]
		if len(pending) == 0 {
			delete(b.queues, userID)
			b.queueMu.Unlock()
			return
		}
		update := pending[0]
		b.queues[userID] = pending[1:]
		b.queueMu.Unlock()

		b.handleUpdate(ctx, update)
	}
}

func updateUserID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	}
	return 0
}

// Stop stops receiving updates and waits for running handlers
func (b *Bot) Stop(ctx context.Context) error {
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		// Start больше не добавляет обработчики после выхода из цикла
		b.receiving.Wait()
		b.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Bot stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for handlers: %w", ctx.Err())
	}
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(userID int64, count int) error {
	// В Telegram user ID и chat ID совпадают для личных чатов
	chatID := userID

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("У вас %d %s для повторения! Нажмите «Учить», чтобы начать.", count, cardsWord(count)))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📚 Учить", CallbackData: callbackLearn}}})
	_, err := b.api.Send(msg)

	if err != nil {
		log.Printf("Error sending reminder to user %d: %v", userID, err)
	} else {
		log.Printf("Successfully sent reminder to user %d for %d cards", userID, count)
	}
	return err
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.adminUserIDs[userID]
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic while handling update %d: %v", update.UpdateID, r)
		}
	}()

	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		switch {
		case update.Message.IsCommand():
			err = b.HandleCommand(ctx, update.Message)
		case update.Message.Document != nil:
			err = b.handleDocument(ctx, update.Message)
		default:
			err = b.handleText(ctx, update.Message)
		}
	}

	if err != nil {
		log.Printf("Error handling update %d: %v", update.UpdateID, err)
	}
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) userConfig(ctx context.Context, userID int64) *models.UserConfig {
	cfg, err := b.configs.GetUserConfig(ctx, userID)
	if err != nil {
		log.Printf("Error getting config for user %d: %v", userID, err)
		cfg = models.DefaultUserConfig(userID)
		cfg.CardsPerSession = b.config.DefaultCardsPerSession
	}
	return cfg
}
