package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nturan/flashgram-bot-sub000/internal/ai"
	"github.com/nturan/flashgram-bot-sub000/internal/bulk"
	"github.com/nturan/flashgram-bot-sub000/internal/database"
	"github.com/nturan/flashgram-bot-sub000/internal/excel"
	"github.com/nturan/flashgram-bot-sub000/internal/session"
	"github.com/nturan/flashgram-bot-sub000/internal/spaced_repetition"
)

// Constants for callback data
const (
	callbackMainMenu    = "main_menu"
	callbackLearn       = "learn"
	callbackFinish      = "finish"
	callbackStats       = "stats"
	callbackJobs        = "jobs"
	callbackSettings    = "settings"
	callbackHelp        = "help"
	callbackBulkConfirm = "bulk_confirm"
	callbackBulkCancel  = "bulk_cancel"

	callbackChoicePrefix = "choice:"
	callbackEditPrefix   = "edit:"
	callbackRegenPrefix  = "regen:"
	callbackDeletePrefix = "delete:"
	callbackCardsPrefix  = "cards:"
)

const (
	// cardsPageSize is the number of cards shown by /cards
	cardsPageSize = 10
	// statsCardLimit bounds the cards loaded for deck statistics
	statsCardLimit   = 1000
	recentWordsShown = 5
)

// maxHistoryEntry limits how much of a long text is kept in the conversation log
const maxHistoryEntry = 500

// MainMenuButtons returns the main menu
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "📚 Учить", CallbackData: callbackLearn}, {Text: "📊 Статистика", CallbackData: callbackStats}},
		{{Text: "📦 Задачи", CallbackData: callbackJobs}, {Text: "⚙️ Настройки", CallbackData: callbackSettings}},
		{{Text: "❓ Помощь", CallbackData: callbackHelp}},
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	chatID := message.Chat.ID

	var err error
	switch message.Command() {
	case "start", "menu":
		err = b.handleStart(chatID)
	case "help":
		err = b.handleHelp(chatID)
	case "learn":
		err = b.startLearning(ctx, chatID, userID)
	case "finish", "cancel":
		err = b.finish(chatID, userID)
	case "stats":
		err = b.handleStats(ctx, chatID, userID)
	case "cards":
		page, _ := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
		err = b.handleCards(ctx, chatID, userID, page-1)
	case "bulk":
		err = b.handleBulk(ctx, chatID, userID, message.CommandArguments())
	case "jobs":
		err = b.handleJobs(chatID, userID)
	case "job":
		err = b.handleJobStatus(chatID, userID, strings.TrimSpace(message.CommandArguments()))
	case "settings":
		err = b.handleSettings(ctx, chatID, userID)
	case "set":
		err = b.handleSet(ctx, chatID, userID, message.CommandArguments())
	case "history":
		err = b.handleHistory(chatID, userID)
	case "reset":
		b.sessions.ClearHistory(userID)
		err = b.reply(chatID, "🧹 История диалога очищена.")
	case "cleanup_jobs":
		// Admin-only command
		if !b.isAdmin(userID) {
			err = b.reply(chatID, "This command is only available for administrators.")
			break
		}
		removed := b.jobs.Cleanup(0)
		err = b.reply(chatID, fmt.Sprintf("Удалено завершённых задач: %d", removed))
	case "remind":
		// Admin-only command
		if !b.isAdmin(userID) {
			err = b.reply(chatID, "This command is only available for administrators.")
			break
		}
		err = b.handleRemind(ctx, chatID, userID, strings.TrimSpace(message.CommandArguments()))
	default:
		msg := tgbotapi.NewMessage(chatID, "Unknown command. Use /menu to show the main menu.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		err = b.sendMessage(msg)
	}
	return err
}

func (b *Bot) handleStart(chatID int64) error {
	text := "👋 Добро пожаловать во Flashgram!\n\n" +
		"Отправьте мне русский текст, слово или файл (.xlsx, .csv, .txt), " +
		"и я создам карточки для каждого нового слова.\n" +
		"Затем повторяйте их по методу интервального повторения."

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "📖 Справка\n\n" +
		"/learn - начать сессию повторения\n" +
		"/finish - завершить сессию или отменить редактирование\n" +
		"/bulk <текст> - создать карточки для всех слов текста\n" +
		"/jobs - последние задачи\n" +
		"/job <id> - статус задачи\n" +
		"/stats - статистика\n" +
		"/cards [страница] - список карточек\n" +
		"/settings - настройки\n" +
		"/set <name> <value> - изменить настройку\n" +
		"/history - история диалога\n" +
		"/reset - очистить историю\n\n" +
		"Список русских слов превращается в карточки, на остальные сообщения отвечает репетитор. " +
		"Во время сессии отвечайте текстом или кнопками. " +
		"Карточку можно изменить (✏️) или перегенерировать (🔄), сессия продолжится после этого."

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "⬅️ Вернуться в меню", CallbackData: callbackMainMenu}},
	})
	return b.sendMessage(msg)
}

// startLearning builds a deck from the user's due cards and shows the first one
func (b *Bot) startLearning(ctx context.Context, chatID, userID int64) error {
	cfg := b.userConfig(ctx, userID)

	cards, err := session.BuildDeck(ctx, b.cards, userID, cfg.CardsPerSession, b.now())
	if err != nil {
		return fmt.Errorf("failed to build deck for user %d: %w", userID, err)
	}
	if len(cards) == 0 {
		return b.reply(chatID, "Нет карточек для повторения. Отправьте текст, чтобы создать новые.")
	}

	b.sessions.StartLearning(userID, cards)
	step, err := b.sessions.Advance(userID)
	if err != nil {
		return err
	}
	return b.showStep(chatID, step)
}

func (b *Bot) showStep(chatID int64, step session.Step) error {
	if step.Finished {
		msg := tgbotapi.NewMessage(chatID, formatFinished(step))
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		return b.sendMessage(msg)
	}

	msg := tgbotapi.NewMessage(chatID, formatQuestion(step.Card, step))
	msg.ReplyMarkup = createKeyboard(questionButtons(step.Card))
	return b.sendMessage(msg)
}

func (b *Bot) finish(chatID, userID int64) error {
	snap := b.sessions.Snapshot(userID)
	b.sessions.Clear(userID)

	if snap.Mode == session.Idle {
		return b.reply(chatID, "Нет активной сессии.")
	}
	return b.showStep(chatID, session.Step{Finished: true, Score: snap.Score, Total: snap.Total})
}

// handleText routes a plain message by the user's current mode
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return nil
	}

	switch b.sessions.Mode(userID) {
	case session.Learning:
		res, err := b.sessions.SubmitAnswer(ctx, userID, text)
		return b.showAnswer(chatID, res, err)
	case session.Editing:
		return b.applyEdit(ctx, chatID, userID, text)
	case session.Regenerating:
		return b.regenerate(ctx, chatID, userID, text)
	default:
		return b.handleIdleText(ctx, chatID, userID, text)
	}
}

func (b *Bot) showAnswer(chatID int64, res session.AnswerResult, err error) error {
	switch {
	case errors.Is(err, session.ErrNoCurrentCard):
		return b.reply(chatID, "Нет карточки, ожидающей ответа. /learn")
	case errors.Is(err, session.ErrWrongMode):
		return b.reply(chatID, "Сейчас нет активной сессии повторения. /learn")
	case err != nil:
		return err
	}

	if err := b.reply(chatID, formatAnswer(res)); err != nil {
		return err
	}
	return b.showStep(chatID, res.Next)
}

// handleIdleText turns word lists into cards and passes everything else to the tutor
func (b *Bot) handleIdleText(ctx context.Context, chatID, userID int64, text string) error {
	if b.tutor != nil && !bulk.IsWordList(text) {
		return b.converse(ctx, chatID, userID, text)
	}

	b.remember(userID, "user", text)
	if len(bulk.ExtractWords(text)) == 0 {
		reply := "Я понимаю только русский текст. Отправьте слово или предложение, или /help."
		b.remember(userID, "assistant", reply)
		return b.reply(chatID, reply)
	}
	return b.ingest(ctx, chatID, userID, text)
}

// converse answers with the tutor; the earlier dialog is sent as context
func (b *Bot) converse(ctx context.Context, chatID, userID int64, text string) error {
	history := b.sessions.History(userID)
	b.remember(userID, "user", text)

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Printf("Warning: Failed to send typing action: %v", err)
	}

	turns := make([]ai.ChatTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, ai.ChatTurn{Role: m.Role, Content: m.Content})
	}

	answer, err := b.tutor(b.userConfig(ctx, userID).Model).Converse(ctx, turns, text)
	if err != nil {
		log.Printf("Error getting tutor reply for user %d: %v", userID, err)
		return b.reply(chatID, "❌ Не удалось получить ответ. Попробуйте ещё раз.")
	}

	b.remember(userID, "assistant", answer)
	return b.reply(chatID, answer)
}

// ingest submits text as a bulk job, asking first when the user wants to confirm
func (b *Bot) ingest(ctx context.Context, chatID, userID int64, text string) error {
	words := bulk.ExtractWords(text)
	if len(words) == 0 {
		return b.reply(chatID, "В тексте нет русских слов.")
	}

	if b.userConfig(ctx, userID).ConfirmFlashcards {
		b.pendingMu.Lock()
		b.pendingBulk[userID] = text
		b.pendingMu.Unlock()

		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Создать карточки для %d слов: %s?", len(words), preview(words, 10)))
		msg.ReplyMarkup = createKeyboard([][]MenuButton{{
			{Text: "✅ Да", CallbackData: callbackBulkConfirm},
			{Text: "❌ Нет", CallbackData: callbackBulkCancel},
		}})
		return b.sendMessage(msg)
	}
	return b.submitBulk(chatID, userID, text)
}

func (b *Bot) submitBulk(chatID, userID int64, text string) error {
	jobID, err := b.jobs.Submit(text, userID)
	if err != nil {
		log.Printf("Error submitting bulk job for user %d: %v", userID, err)
		return b.reply(chatID, "❌ Не удалось запустить задачу. Попробуйте позже.")
	}

	reply := fmt.Sprintf("📦 Задача запущена: %d слов.\nСтатус: /job %s", len(bulk.ExtractWords(text)), jobID)
	b.remember(userID, "assistant", reply)
	return b.reply(chatID, reply)
}

func (b *Bot) handleBulk(ctx context.Context, chatID, userID int64, text string) error {
	if b.sessions.Mode(userID) != session.Idle {
		return b.reply(chatID, "Сначала завершите текущую сессию (/finish).")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return b.reply(chatID, "Использование: /bulk <текст>. Можно также отправить файл .xlsx, .csv или .txt.")
	}
	return b.ingest(ctx, chatID, userID, text)
}

// handleDocument turns an uploaded spreadsheet or text file into a bulk job
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	chatID := message.Chat.ID
	doc := message.Document

	if b.sessions.Mode(userID) != session.Idle {
		return b.reply(chatID, "Сначала завершите текущую сессию (/finish).")
	}
	if !excel.SupportedExtension(doc.FileName) {
		return b.reply(chatID, "Поддерживаются файлы .xlsx, .xlsm, .csv и .txt.")
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return fmt.Errorf("failed to get file url: %w", err)
	}

	body, err := download(ctx, url)
	if err != nil {
		log.Printf("Error downloading %s for user %d: %v", doc.FileName, userID, err)
		return b.reply(chatID, "❌ Не удалось скачать файл.")
	}
	defer body.Close()

	res, err := excel.Import(doc.FileName, body, b.config.Import)
	if err != nil {
		log.Printf("Error importing %s for user %d: %v", doc.FileName, userID, err)
		return b.reply(chatID, fmt.Sprintf("❌ Не удалось прочитать файл: %v", err))
	}

	log.Printf("Imported %d rows from %s for user %d", res.Rows, doc.FileName, userID)
	return b.ingest(ctx, chatID, userID, res.Text)
}

func download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func (b *Bot) handleJobs(chatID, userID int64) error {
	jobs := b.jobs.ListJobs(userID)
	if len(jobs) == 0 {
		return b.reply(chatID, "У вас нет задач.")
	}
	if len(jobs) > b.config.JobsShown {
		jobs = jobs[:b.config.JobsShown]
	}

	parts := make([]string, 0, len(jobs))
	for _, job := range jobs {
		parts = append(parts, formatJob(job)+"\n🕒 "+formatAge(b.now().Sub(job.CreatedAt)))
	}
	return b.reply(chatID, strings.Join(parts, "\n\n"))
}

func (b *Bot) handleJobStatus(chatID, userID int64, jobID string) error {
	if jobID == "" {
		return b.reply(chatID, "Использование: /job <id>")
	}

	job, err := b.jobs.Status(jobID)
	if errors.Is(err, bulk.ErrJobNotFound) || (err == nil && job.UserID != userID) {
		return b.reply(chatID, "Задача не найдена.")
	}
	if err != nil {
		return err
	}
	return b.reply(chatID, formatJob(job))
}

func (b *Bot) handleStats(ctx context.Context, chatID, userID int64) error {
	now := b.now()
	dashboard, err := b.cards.GetDashboard(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("failed to get dashboard: %w", err)
	}
	dict, err := b.dictionary.GetDictionaryStats(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get dictionary stats: %w", err)
	}
	cards, err := b.cards.ListFlashcards(ctx, userID, statsCardLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list flashcards: %w", err)
	}
	recent, err := b.dictionary.ListRecentWords(ctx, userID, recentWordsShown)
	if err != nil {
		return fmt.Errorf("failed to list recent words: %w", err)
	}

	stats := statsView{
		Dashboard:  dashboard,
		Dictionary: dict,
		Deck:       spaced_repetition.SessionStatistics(cards, now),
		Recent:     recent,
		Session:    b.sessions.Snapshot(userID),
	}
	msg := tgbotapi.NewMessage(chatID, formatStats(stats))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "⬅️ Вернуться в меню", CallbackData: callbackMainMenu}},
	})
	return b.sendMessage(msg)
}

// handleCards shows a page of the user's cards with edit and delete buttons
func (b *Bot) handleCards(ctx context.Context, chatID, userID int64, page int) error {
	if page < 0 {
		page = 0
	}
	// На одну больше, чтобы узнать, есть ли следующая страница
	cards, err := b.cards.ListFlashcards(ctx, userID, cardsPageSize+1, page*cardsPageSize)
	if err != nil {
		return fmt.Errorf("failed to list flashcards: %w", err)
	}
	if len(cards) == 0 {
		if page > 0 {
			return b.reply(chatID, "На этой странице нет карточек.")
		}
		return b.reply(chatID, "У вас пока нет карточек. Отправьте список слов, чтобы создать их.")
	}

	hasNext := len(cards) > cardsPageSize
	if hasNext {
		cards = cards[:cardsPageSize]
	}

	msg := tgbotapi.NewMessage(chatID, formatCards(cards, page*cardsPageSize, b.now()))
	msg.ReplyMarkup = createKeyboard(cardButtons(cards, page*cardsPageSize, page, hasNext))
	return b.sendMessage(msg)
}

// handleRemind runs the reminder check for the given user, or for the admin
func (b *Bot) handleRemind(ctx context.Context, chatID, userID int64, arg string) error {
	if b.reminders == nil {
		return b.reply(chatID, "Планировщик напоминаний не запущен.")
	}

	target := userID
	if arg != "" {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return b.reply(chatID, "Использование: /remind [user_id]")
		}
		target = id
	}

	if err := b.reminders.RunManualCheck(ctx, target); err != nil {
		log.Printf("Error running manual reminder check for user %d: %v", target, err)
		return b.reply(chatID, fmt.Sprintf("❌ Не удалось проверить пользователя %d: %v", target, err))
	}
	return b.reply(chatID, fmt.Sprintf("🔔 Проверка напоминаний для пользователя %d выполнена.", target))
}

func (b *Bot) handleSettings(ctx context.Context, chatID, userID int64) error {
	cfg, err := b.configs.GetUserConfig(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user config: %w", err)
	}
	return b.reply(chatID, formatSettings(cfg))
}

func (b *Bot) handleSet(ctx context.Context, chatID, userID int64, args string) error {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return b.reply(chatID, "Использование: /set <name> <value>, например /set cards_per_session 10")
	}

	cfg, err := b.configs.UpdateSetting(ctx, userID, parts[0], strings.Join(parts[1:], " "))
	if err != nil {
		return b.reply(chatID, fmt.Sprintf("❌ %v", err))
	}
	return b.reply(chatID, "✅ Сохранено.\n\n"+formatSettings(cfg))
}

func (b *Bot) handleHistory(chatID, userID int64) error {
	history := b.sessions.History(userID)
	if len(history) == 0 {
		return b.reply(chatID, "История пуста.")
	}

	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.At.Format("15:04"), m.Role, m.Content)
	}
	return b.reply(chatID, strings.TrimRight(sb.String(), "\n"))
}

// remember logs a message in the conversation history; it is a no-op outside Idle
func (b *Bot) remember(userID int64, role, content string) {
	if r := []rune(content); len(r) > maxHistoryEntry {
		content = string(r[:maxHistoryEntry]) + "…"
	}
	if err := b.sessions.PushHistory(userID, role, content); err != nil && !errors.Is(err, session.ErrWrongMode) {
		log.Printf("Error saving history for user %d: %v", userID, err)
	}
}

// startEditing sends the card as JSON and waits for the changed version
func (b *Bot) startEditing(ctx context.Context, chatID, userID int64, cardID string) error {
	if !b.ownsCard(ctx, userID, cardID) {
		return b.reply(chatID, "Карточка не найдена.")
	}

	card, err := b.sessions.StartEditing(ctx, userID, cardID)
	if err != nil {
		return err
	}

	template, err := editTemplate(card)
	if err != nil {
		return err
	}
	return b.reply(chatID, "✏️ Отправьте изменённую карточку в формате JSON (или /finish для отмены):\n\n"+template)
}

func (b *Bot) applyEdit(ctx context.Context, chatID, userID int64, text string) error {
	res, err := b.sessions.ApplyEdit(ctx, userID, []byte(text))
	if errors.Is(err, session.ErrInvalidEdit) {
		return b.reply(chatID, fmt.Sprintf("❌ %v\nИсправьте и отправьте снова или /finish для отмены.", err))
	}
	if err != nil {
		return b.editFailed(chatID, userID, err)
	}

	if err := b.reply(chatID, "✅ Карточка обновлена: "+res.Card.Title); err != nil {
		return err
	}
	return b.resume(chatID, userID, res)
}

func (b *Bot) startRegenerating(ctx context.Context, chatID, userID int64, cardID string) error {
	if !b.ownsCard(ctx, userID, cardID) {
		return b.reply(chatID, "Карточка не найдена.")
	}

	card, err := b.sessions.StartRegenerating(ctx, userID, cardID)
	if err != nil {
		return err
	}
	return b.reply(chatID, fmt.Sprintf("🔄 Как изменить карточку «%s»? Опишите пожелания или отправьте «-» (/finish для отмены).", card.Title))
}

func (b *Bot) regenerate(ctx context.Context, chatID, userID int64, instructions string) error {
	snap := b.sessions.Snapshot(userID)
	card, err := b.cards.GetFlashcard(ctx, snap.TargetID)
	if err != nil {
		return b.editFailed(chatID, userID, fmt.Errorf("failed to load flashcard %s: %w", snap.TargetID, err))
	}
	if b.regenerator == nil {
		return b.reply(chatID, "Генерация карточек недоступна.")
	}
	if instructions == "-" {
		instructions = ""
	}

	draft, err := b.regenerator(b.userConfig(ctx, userID).Model).RegenerateCard(ctx, card, instructions)
	if err != nil {
		log.Printf("Error regenerating card %s for user %d: %v", card.ID, userID, err)
		return b.reply(chatID, "❌ Не удалось сгенерировать карточку. Попробуйте ещё раз или /finish для отмены.")
	}

	res, err := b.sessions.ApplyRegeneration(ctx, userID, draft.Title, draft.Content)
	if errors.Is(err, session.ErrInvalidEdit) {
		return b.reply(chatID, fmt.Sprintf("❌ %v\nПопробуйте ещё раз или /finish для отмены.", err))
	}
	if err != nil {
		return b.editFailed(chatID, userID, err)
	}

	if err := b.reply(chatID, "✅ Новая карточка:\n\n"+res.Card.Content.Question()); err != nil {
		return err
	}
	return b.resume(chatID, userID, res)
}

// editFailed answers an edit whose card or mode is gone; other errors are returned
func (b *Bot) editFailed(chatID, userID int64, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, session.ErrCardNotFound):
		log.Printf("Edited flashcard of user %d is gone: %v", userID, err)
		return b.reply(chatID, "❌ Карточка не найдена, возможно она удалена. /finish для выхода.")
	case errors.Is(err, session.ErrWrongMode):
		return b.reply(chatID, "Редактирование уже завершено. /finish для выхода.")
	}
	return err
}

// resume shows where an interrupted learning session continues
func (b *Bot) resume(chatID, userID int64, res session.EditResult) error {
	if !res.Resumed {
		return nil
	}

	if res.Current != nil {
		snap := b.sessions.Snapshot(userID)
		return b.showStep(chatID, session.Step{Card: res.Current, Score: snap.Score, Total: snap.Total})
	}

	step, err := b.sessions.Advance(userID)
	if err != nil {
		return err
	}
	return b.showStep(chatID, step)
}

func (b *Bot) deleteCard(ctx context.Context, chatID, userID int64, cardID string) error {
	ok, err := b.cards.DeleteFlashcard(ctx, userID, cardID)
	if err != nil {
		return fmt.Errorf("failed to delete flashcard %s: %w", cardID, err)
	}
	if !ok {
		return b.reply(chatID, "Карточка не найдена.")
	}
	if err := b.reply(chatID, "🗑 Карточка удалена."); err != nil {
		return err
	}

	// Удалённая карточка могла быть текущей в сессии
	snap := b.sessions.Snapshot(userID)
	if snap.Mode == session.Learning && snap.Current != nil && snap.Current.ID == cardID {
		step, err := b.sessions.Advance(userID)
		if err != nil {
			return err
		}
		return b.showStep(chatID, step)
	}
	return nil
}

func (b *Bot) ownsCard(ctx context.Context, userID int64, cardID string) bool {
	card, err := b.cards.GetFlashcard(ctx, cardID)
	if err != nil {
		log.Printf("Error loading flashcard %s for user %d: %v", cardID, userID, err)
		return false
	}
	return card.UserID == userID
}

// HandleCallback обрабатывает нажатия на inline-кнопки
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback == nil || callback.Message == nil || callback.From == nil {
		return fmt.Errorf("invalid callback data: required fields are missing")
	}

	// Always send an answer to the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Printf("Warning: Failed to answer callback: %v", err)
	}

	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	data := callback.Data

	var err error
	switch {
	case data == callbackMainMenu:
		err = b.handleStart(chatID)
	case data == callbackHelp:
		err = b.handleHelp(chatID)
	case data == callbackLearn:
		err = b.startLearning(ctx, chatID, userID)
	case data == callbackFinish:
		err = b.finish(chatID, userID)
	case data == callbackStats:
		err = b.handleStats(ctx, chatID, userID)
	case data == callbackJobs:
		err = b.handleJobs(chatID, userID)
	case data == callbackSettings:
		err = b.handleSettings(ctx, chatID, userID)
	case data == callbackBulkConfirm, data == callbackBulkCancel:
		b.pendingMu.Lock()
		text, ok := b.pendingBulk[userID]
		delete(b.pendingBulk, userID)
		b.pendingMu.Unlock()

		switch {
		case !ok:
			err = b.reply(chatID, "Нет текста, ожидающего подтверждения.")
		case data == callbackBulkCancel:
			err = b.reply(chatID, "Отменено.")
		default:
			err = b.submitBulk(chatID, userID, text)
		}
	case strings.HasPrefix(data, callbackChoicePrefix):
		idx, convErr := strconv.Atoi(strings.TrimPrefix(data, callbackChoicePrefix))
		if convErr != nil {
			return fmt.Errorf("invalid option in callback data: %w", convErr)
		}
		res, answerErr := b.sessions.SubmitChoice(ctx, userID, []int{idx})
		err = b.showAnswer(chatID, res, answerErr)
	case strings.HasPrefix(data, callbackEditPrefix):
		err = b.startEditing(ctx, chatID, userID, strings.TrimPrefix(data, callbackEditPrefix))
	case strings.HasPrefix(data, callbackRegenPrefix):
		err = b.startRegenerating(ctx, chatID, userID, strings.TrimPrefix(data, callbackRegenPrefix))
	case strings.HasPrefix(data, callbackCardsPrefix):
		page, convErr := strconv.Atoi(strings.TrimPrefix(data, callbackCardsPrefix))
		if convErr != nil {
			return fmt.Errorf("invalid page in callback data: %w", convErr)
		}
		err = b.handleCards(ctx, chatID, userID, page)
	case strings.HasPrefix(data, callbackDeletePrefix):
		err = b.deleteCard(ctx, chatID, userID, strings.TrimPrefix(data, callbackDeletePrefix))
	default:
		return b.reply(chatID, "⚠️ Неизвестное действие")
	}

	if err != nil {
		log.Printf("Error handling callback %q for user %d: %v", data, userID, err)
		return b.reply(chatID, "❌ Произошла ошибка. Пожалуйста, попробуйте позже.")
	}
	return nil
}

func preview(words []string, n int) string {
	if len(words) <= n {
		return strings.Join(words, ", ")
	}
	return strings.Join(words[:n], ", ") + fmt.Sprintf(" и ещё %d", len(words)-n)
}
