package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nturan/flashgram-bot-sub000/internal/ai"
	"github.com/nturan/flashgram-bot-sub000/internal/bulk"
	"github.com/nturan/flashgram-bot-sub000/internal/database"
	"github.com/nturan/flashgram-bot-sub000/internal/session"
	"github.com/nturan/flashgram-bot-sub000/internal/spaced_repetition"
	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

const testUser int64 = 7

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	answered int
	fileURL  string
	updates  chan tgbotapi.Update
	stopOnce sync.Once
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastMessage() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if msg, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	return tgbotapi.MessageConfig{}
}

func (f *fakeAPI) last() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeJobs struct {
	mu        sync.Mutex
	submitted []string
	jobs      map[string]bulk.JobSnapshot
	cleaned   int
}

func (f *fakeJobs) Submit(text string, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
	return "job-1", nil
}

func (f *fakeJobs) Status(jobID string) (bulk.JobSnapshot, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return bulk.JobSnapshot{}, bulk.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) ListJobs(userID int64) []bulk.JobSnapshot {
	var out []bulk.JobSnapshot
	for _, j := range f.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out
}

func (f *fakeJobs) Cleanup(maxAge time.Duration) int {
	f.cleaned++
	return len(f.jobs)
}

type mockRegenerator struct {
	regenerateFunc func(ctx context.Context, card *models.Flashcard, instructions string) (models.FlashcardDraft, error)
}

func (m *mockRegenerator) RegenerateCard(ctx context.Context, card *models.Flashcard, instructions string) (models.FlashcardDraft, error) {
	return m.regenerateFunc(ctx, card, instructions)
}

type mockTutor struct {
	converseFunc func(ctx context.Context, history []ai.ChatTurn, message string) (string, error)
}

func (m *mockTutor) Converse(ctx context.Context, history []ai.ChatTurn, message string) (string, error) {
	return m.converseFunc(ctx, history, message)
}

type mockReminders struct {
	checkFunc func(ctx context.Context, userID int64) error
}

func (m *mockReminders) RunManualCheck(ctx context.Context, userID int64) error {
	return m.checkFunc(ctx, userID)
}

type testBot struct {
	*Bot
	api   *fakeAPI
	cards *database.FlashcardRepository
	dict  *database.DictionaryRepository
	jobs  *fakeJobs
	regen *mockRegenerator
	tutor *mockTutor
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	db, err := database.Connect(database.Options{Type: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cards := database.NewFlashcardRepository(db)
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
	jobs := &fakeJobs{jobs: map[string]bulk.JobSnapshot{}}
	regen := &mockRegenerator{}
	tutor := &mockTutor{converseFunc: func(ctx context.Context, history []ai.ChatTurn, message string) (string, error) {
		return "ok", nil
	}}
	dict := database.NewDictionaryRepository(db)

	cfg := DefaultConfig()
	cfg.AdminUserIDs = []int64{1}

	b := newBot(api, Deps{
		Cards:       cards,
		Configs:     database.NewUserConfigRepository(db),
		Dictionary:  dict,
		Jobs:        jobs,
		Sessions:    session.NewMachine(cards, spaced_repetition.NewSM2()),
		Regenerator: func(model string) Regenerator { return regen },
		Tutor:       func(model string) Tutor { return tutor },
		Config:      cfg,
	})
	return &testBot{Bot: b, api: api, cards: cards, dict: dict, jobs: jobs, regen: regen, tutor: tutor}
}

func (tb *testBot) save(t *testing.T, content models.Content) string {
	t.Helper()
	id, err := tb.cards.SaveFlashcard(context.Background(), &models.Flashcard{
		UserID:  testUser,
		Title:   content.Question(),
		Content: content,
		Review:  models.NewReviewRecord(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	return id
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		n := strings.IndexByte(text, ' ')
		if n < 0 {
			n = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return tgbotapi.Update{Message: msg}
}

func (tb *testBot) send(text string) {
	tb.handleUpdate(context.Background(), textUpdate(testUser, text))
}

func (tb *testBot) sendAs(userID int64, text string) {
	tb.handleUpdate(context.Background(), textUpdate(userID, text))
}

func (tb *testBot) press(data string) {
	tb.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUser},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: testUser}},
		Data:    data,
	}})
}

func TestLearningSession(t *testing.T) {
	tb := newTestBot(t)
	answers := map[string]string{"кошка": "cat", "собака": "dog"}
	ids := map[string]string{}
	for front, back := range answers {
		ids[front] = tb.save(t, models.TwoSided{Front: front, Back: back})
	}

	tb.send("/learn")
	require.Equal(t, session.Learning, tb.sessions.Mode(testUser))

	// Первую карточку отвечаем верно, вторую неверно
	first := currentFront(t, tb.api.last(), answers)
	tb.send(answers[first])
	assert.Contains(t, tb.api.texts()[1], "Верно")

	second := currentFront(t, tb.api.last(), answers)
	assert.NotEqual(t, first, second)
	tb.send("wrong")
	texts := tb.api.texts()
	assert.Contains(t, texts[len(texts)-2], "Неверно")
	assert.Contains(t, tb.api.last(), "1/2")
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))

	card, err := tb.cards.GetFlashcard(context.Background(), ids[first])
	require.NoError(t, err)
	assert.Equal(t, 1, card.Review.TimesCorrect)
	assert.Equal(t, 1, card.Review.RepetitionCount)

	card, err = tb.cards.GetFlashcard(context.Background(), ids[second])
	require.NoError(t, err)
	assert.Equal(t, 1, card.Review.TimesIncorrect)
}

func currentFront(t *testing.T, text string, answers map[string]string) string {
	t.Helper()
	for front := range answers {
		if strings.Contains(text, front) {
			return front
		}
	}
	t.Fatalf("no known card in %q", text)
	return ""
}

func TestLearnWithoutCards(t *testing.T) {
	tb := newTestBot(t)
	tb.send("/learn")
	assert.Contains(t, tb.api.last(), "Нет карточек")
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))
}

func TestMultipleChoiceButtons(t *testing.T) {
	tb := newTestBot(t)
	tb.save(t, models.MultipleChoice{Prompt: "cat?", Options: []string{"собака", "кошка"}, CorrectIndices: []int{1}})

	tb.send("/learn")
	tb.press(callbackChoicePrefix + "1")

	texts := tb.api.texts()
	assert.Contains(t, texts[len(texts)-2], "Верно")
	assert.Contains(t, tb.api.last(), "1/1")
	assert.Equal(t, 1, tb.api.answered)
}

func TestEditResumesSession(t *testing.T) {
	tb := newTestBot(t)
	id := tb.save(t, models.TwoSided{Front: "кошка", Back: "cat"})

	tb.send("/learn")
	tb.press(callbackEditPrefix + id)
	require.Equal(t, session.Editing, tb.sessions.Mode(testUser))
	assert.Contains(t, tb.api.last(), `"front": "кошка"`)

	tb.send(`{"front": ""}`)
	assert.Contains(t, tb.api.last(), "❌")
	require.Equal(t, session.Editing, tb.sessions.Mode(testUser))

	tb.send(`{"title": "кот", "front": "кот", "back": "tomcat"}`)
	require.Equal(t, session.Learning, tb.sessions.Mode(testUser))
	assert.Contains(t, tb.api.last(), "кот")

	tb.send("tomcat")
	texts := tb.api.texts()
	assert.Contains(t, texts[len(texts)-2], "Верно")

	card, err := tb.cards.GetFlashcard(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "кот", card.Title)
}

func TestRegenerateCard(t *testing.T) {
	tb := newTestBot(t)
	id := tb.save(t, models.TwoSided{Front: "дом", Back: "house"})

	var instructions []string
	tb.regen.regenerateFunc = func(ctx context.Context, card *models.Flashcard, in string) (models.FlashcardDraft, error) {
		instructions = append(instructions, in)
		if len(instructions) == 1 {
			return models.FlashcardDraft{}, errors.New("rate limited")
		}
		return models.FlashcardDraft{
			Title:   "дом",
			Content: models.FillInBlank{TextWithBlanks: "Я иду {blank}", Answers: []string{"домой"}},
		}, nil
	}

	tb.press(callbackRegenPrefix + id)
	require.Equal(t, session.Regenerating, tb.sessions.Mode(testUser))

	tb.send("сделай пропуск")
	assert.Contains(t, tb.api.last(), "Не удалось")
	require.Equal(t, session.Regenerating, tb.sessions.Mode(testUser))

	tb.send("-")
	assert.Equal(t, []string{"сделай пропуск", ""}, instructions)
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))
	assert.Contains(t, tb.api.last(), "Я иду _____")

	card, err := tb.cards.GetFlashcard(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.FillInBlankType, card.Type())
}

func TestEditOfDeletedCard(t *testing.T) {
	tb := newTestBot(t)
	id := tb.save(t, models.TwoSided{Front: "кошка", Back: "cat"})

	tb.press(callbackEditPrefix + id)
	require.Equal(t, session.Editing, tb.sessions.Mode(testUser))

	_, err := tb.cards.DeleteFlashcard(context.Background(), testUser, id)
	require.NoError(t, err)

	tb.send(`{"front": "кот", "back": "tomcat"}`)
	assert.Contains(t, tb.api.last(), "не найдена")
	assert.Contains(t, tb.api.last(), "/finish")

	tb.send("/finish")
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))
}

func TestRegenerateDeletedCard(t *testing.T) {
	tb := newTestBot(t)
	id := tb.save(t, models.TwoSided{Front: "дом", Back: "house"})
	tb.regen.regenerateFunc = func(ctx context.Context, card *models.Flashcard, in string) (models.FlashcardDraft, error) {
		t.Fatal("deleted card must not be regenerated")
		return models.FlashcardDraft{}, nil
	}

	tb.press(callbackRegenPrefix + id)
	_, err := tb.cards.DeleteFlashcard(context.Background(), testUser, id)
	require.NoError(t, err)

	tb.send("-")
	assert.Contains(t, tb.api.last(), "не найдена")
	assert.Contains(t, tb.api.last(), "/finish")
	assert.Equal(t, session.Regenerating, tb.sessions.Mode(testUser))
}

func TestEditForeignCard(t *testing.T) {
	tb := newTestBot(t)
	id, err := tb.cards.SaveFlashcard(context.Background(), &models.Flashcard{
		UserID:  99,
		Title:   "чужая",
		Content: models.TwoSided{Front: "a", Back: "b"},
	})
	require.NoError(t, err)

	tb.press(callbackEditPrefix + id)
	assert.Contains(t, tb.api.last(), "не найдена")
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))
}

func TestDeleteCurrentCard(t *testing.T) {
	tb := newTestBot(t)
	id := tb.save(t, models.TwoSided{Front: "кошка", Back: "cat"})

	tb.send("/learn")
	tb.press(callbackDeletePrefix + id)

	assert.Contains(t, tb.api.last(), "Сессия завершена")
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))

	_, err := tb.cards.GetFlashcard(context.Background(), id)
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestFinishCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.send("/finish")
	assert.Contains(t, tb.api.last(), "Нет активной сессии")

	tb.save(t, models.TwoSided{Front: "кошка", Back: "cat"})
	tb.send("/learn")
	tb.send("/finish")
	assert.Contains(t, tb.api.last(), "Сессия завершена")
	assert.Equal(t, session.Idle, tb.sessions.Mode(testUser))
}

func TestIdleTextRouting(t *testing.T) {
	tb := newTestBot(t)

	var histories [][]ai.ChatTurn
	tb.tutor.converseFunc = func(ctx context.Context, history []ai.ChatTurn, message string) (string, error) {
		histories = append(histories, history)
		return "Hello! По-русски: «Привет».", nil
	}

	tb.send("Hello")
	assert.Empty(t, tb.jobs.submitted)
	assert.Equal(t, "Hello! По-русски: «Привет».", tb.api.last())

	tb.send("Мама мыла раму")
	require.Equal(t, []string{"Мама мыла раму"}, tb.jobs.submitted)
	assert.Contains(t, tb.api.last(), "/job job-1")

	tb.send("Как сказать cat по-русски?")
	require.Len(t, histories, 2)
	assert.Empty(t, histories[0])
	require.Len(t, histories[1], 4)
	assert.Equal(t, ai.ChatTurn{Role: "user", Content: "Hello"}, histories[1][0])
	assert.Equal(t, "assistant", histories[1][3].Role)
	assert.Len(t, tb.jobs.submitted, 1)

	history := tb.sessions.History(testUser)
	require.Len(t, history, 6)
	assert.Equal(t, "Как сказать cat по-русски?", history[4].Content)

	tb.send("/reset")
	assert.Empty(t, tb.sessions.History(testUser))
}

func TestTutorFailure(t *testing.T) {
	tb := newTestBot(t)
	tb.tutor.converseFunc = func(ctx context.Context, history []ai.ChatTurn, message string) (string, error) {
		return "", errors.New("timeout")
	}

	tb.send("What does тоска mean?")
	assert.Contains(t, tb.api.last(), "Не удалось получить ответ")
	assert.Empty(t, tb.jobs.submitted)
	assert.Len(t, tb.sessions.History(testUser), 1)
}

func TestBulkConfirmation(t *testing.T) {
	tb := newTestBot(t)
	tb.send("/set confirm_flashcards yes")
	assert.Contains(t, tb.api.last(), "Сохранено")

	tb.send("/bulk кошка и собака")
	assert.Empty(t, tb.jobs.submitted)
	assert.Contains(t, tb.api.last(), "2 слов")

	tb.press(callbackBulkCancel)
	tb.press(callbackBulkConfirm)
	assert.Contains(t, tb.api.last(), "Нет текста")
	assert.Empty(t, tb.jobs.submitted)

	tb.send("/bulk кошка и собака")
	tb.press(callbackBulkConfirm)
	assert.Equal(t, []string{"кошка и собака"}, tb.jobs.submitted)
}

func TestDocumentUpload(t *testing.T) {
	tb := newTestBot(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("слово\nкошка\nсобака\n"))
	}))
	defer srv.Close()
	tb.api.fileURL = srv.URL

	upload := func(name, fileID string) {
		tb.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: testUser},
			Chat:     &tgbotapi.Chat{ID: testUser},
			Document: &tgbotapi.Document{FileID: fileID, FileName: name},
		}})
	}

	upload("photo.png", "f1")
	assert.Contains(t, tb.api.last(), "Поддерживаются")

	upload("words.csv", "missing")
	assert.Contains(t, tb.api.last(), "скачать")

	upload("words.csv", "f2")
	require.Len(t, tb.jobs.submitted, 1)
	assert.Equal(t, "слово\nкошка\nсобака\n", tb.jobs.submitted[0])
}

func TestSettingsCommands(t *testing.T) {
	tb := newTestBot(t)

	tb.send("/settings")
	assert.Contains(t, tb.api.last(), "cards_per_session: 20")

	tb.send("/set cards_per_session 0")
	assert.Contains(t, tb.api.last(), "between 1 and 100")

	tb.send("/set cards_per_session 1")
	assert.Contains(t, tb.api.last(), "cards_per_session: 1")

	tb.send("/set")
	assert.Contains(t, tb.api.last(), "Использование")

	// Сессия ограничена настройкой пользователя
	tb.save(t, models.TwoSided{Front: "кошка", Back: "cat"})
	tb.save(t, models.TwoSided{Front: "собака", Back: "dog"})
	tb.send("/learn")
	assert.Equal(t, 0, tb.sessions.Snapshot(testUser).Remaining)
}

func TestJobCommands(t *testing.T) {
	tb := newTestBot(t)
	tb.jobs.jobs["mine"] = bulk.JobSnapshot{
		JobID: "mine", UserID: testUser, Status: bulk.StatusCompleted, ProgressPercentage: 100,
		TotalWords: 2, ProcessedWords: 2, GeneratedFlashcards: 3,
		FailedWords: []bulk.FailedWord{{Word: "мыла", Reason: bulk.ReasonAnalysisFailed}},
		CreatedAt:   time.Now(),
	}
	tb.jobs.jobs["other"] = bulk.JobSnapshot{JobID: "other", UserID: 99}

	tb.send("/job mine")
	assert.Contains(t, tb.api.last(), "готово (100.0%)")
	assert.Contains(t, tb.api.last(), "мыла (analysis_failed)")

	tb.send("/job other")
	assert.Contains(t, tb.api.last(), "не найдена")

	tb.send("/jobs")
	assert.Contains(t, tb.api.last(), "mine")
	assert.NotContains(t, tb.api.last(), "other")

	tb.send("/cleanup_jobs")
	assert.Contains(t, tb.api.last(), "administrators")
	assert.Zero(t, tb.jobs.cleaned)
}

func TestStatsCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.save(t, models.TwoSided{Front: "кошка", Back: "cat"})

	tb.send("/stats")
	assert.Contains(t, tb.api.last(), "Всего карточек: 1")
	assert.Contains(t, tb.api.last(), "Обработано слов: 0")
	assert.Contains(t, tb.api.last(), "Средний коэффициент лёгкости: 2.50")
	assert.NotContains(t, tb.api.last(), "Последние слова")

	for _, w := range []string{"кошка", "собака"} {
		require.NoError(t, tb.dict.PutDictionaryWord(context.Background(), &models.DictionaryWord{
			UserID: testUser, DictionaryForm: w, WordType: models.WordTypeNoun, FlashcardsGenerated: 1,
		}))
	}
	tb.send("/stats")
	assert.Contains(t, tb.api.last(), "Обработано слов: 2")
	assert.Contains(t, tb.api.last(), "Последние слова: ")
	assert.Contains(t, tb.api.last(), "собака")
}

func TestCardsCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.send("/cards")
	assert.Contains(t, tb.api.last(), "нет карточек")

	ids := make([]string, 0, cardsPageSize+1)
	for i := 0; i <= cardsPageSize; i++ {
		ids = append(ids, tb.save(t, models.TwoSided{Front: fmt.Sprintf("слово %d", i), Back: "word"}))
	}
	mastered := models.ReviewRecord{DueDate: time.Now().Add(40 * 24 * time.Hour), IntervalDays: 40, EaseFactor: 2.7, RepetitionCount: 6}
	_, err := tb.cards.UpdateReviewRecord(context.Background(), ids[0], mastered)
	require.NoError(t, err)

	tb.send("/cards")
	first := tb.api.lastMessage()
	assert.Contains(t, first.Text, "1. ")
	assert.Contains(t, first.Text, "10. ")
	assert.NotContains(t, first.Text, "11. ")
	markup, ok := first.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, cardsPageSize+1)
	nav := markup.InlineKeyboard[cardsPageSize]
	require.Len(t, nav, 1)
	assert.Equal(t, callbackCardsPrefix+"1", *nav[0].CallbackData)

	tb.press(callbackCardsPrefix + "1")
	second := tb.api.lastMessage()
	assert.Contains(t, second.Text, "11. ")
	assert.Contains(t, first.Text+second.Text, "⭐")
	assert.Contains(t, first.Text+second.Text, "через 40 дней")

	// Кнопка удаления со второй страницы
	markup = second.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	tb.press(*markup.InlineKeyboard[0][1].CallbackData)
	assert.Contains(t, tb.api.last(), "удалена")

	tb.send("/cards 3")
	assert.Contains(t, tb.api.last(), "На этой странице нет карточек")
}

func TestRemindCommand(t *testing.T) {
	tb := newTestBot(t)

	var checked []int64
	reminders := &mockReminders{checkFunc: func(ctx context.Context, userID int64) error {
		checked = append(checked, userID)
		if userID == 13 {
			return errors.New("database is locked")
		}
		return nil
	}}

	tb.send("/remind")
	assert.Contains(t, tb.api.last(), "administrators")

	tb.sendAs(1, "/remind")
	assert.Contains(t, tb.api.last(), "не запущен")

	tb.SetReminders(reminders)
	tb.sendAs(1, "/remind")
	tb.sendAs(1, fmt.Sprintf("/remind %d", testUser))
	assert.Contains(t, tb.api.last(), "выполнена")
	tb.sendAs(1, "/remind 13")
	assert.Contains(t, tb.api.last(), "database is locked")
	tb.sendAs(1, "/remind abc")
	assert.Contains(t, tb.api.last(), "Использование")

	assert.Equal(t, []int64{1, testUser, 13}, checked)
}

func TestSendReminders(t *testing.T) {
	tb := newTestBot(t)
	require.NoError(t, tb.SendReminders(testUser, 3))
	assert.Contains(t, tb.api.last(), "3 карточки")
}

func TestCardsWord(t *testing.T) {
	tbl := map[int]string{
		1: "карточка", 2: "карточки", 5: "карточек", 11: "карточек",
		21: "карточка", 24: "карточки", 112: "карточек",
	}
	for n, want := range tbl {
		assert.Equal(t, want, cardsWord(n), "%d", n)
	}
}

func TestUpdatesOfOneUserAreHandledInOrder(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	var deck []models.Flashcard
	for _, c := range []models.TwoSided{{Front: "кошка", Back: "cat"}, {Front: "собака", Back: "dog"}} {
		card, err := tb.cards.GetFlashcard(ctx, tb.save(t, c))
		require.NoError(t, err)
		deck = append(deck, *card)
	}
	tb.sessions.StartLearning(testUser, deck)
	_, err := tb.sessions.Advance(testUser)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tb.Start(ctx) }()

	// Оба ответа приходят одной пачкой
	tb.api.updates <- textUpdate(testUser, "cat")
	tb.api.updates <- textUpdate(testUser, "dog")
	tb.api.updates <- textUpdate(99, "/help")

	assert.Eventually(t, func() bool {
		all := strings.Join(tb.api.texts(), "\n")
		return strings.Contains(all, "Сессия завершена") && strings.Contains(all, "Справка")
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, tb.Stop(stopCtx))
	require.NoError(t, <-done)

	var finished string
	for _, text := range tb.api.texts() {
		if strings.Contains(text, "Сессия завершена") {
			finished = text
		}
	}
	assert.Contains(t, finished, "2/2")

	tb.queueMu.Lock()
	defer tb.queueMu.Unlock()
	assert.Empty(t, tb.queues)
}

func TestStartStop(t *testing.T) {
	tb := newTestBot(t)

	done := make(chan error, 1)
	go func() { done <- tb.Start(context.Background()) }()

	tb.api.updates <- textUpdate(testUser, "/help")

	assert.Eventually(t, func() bool { return len(tb.api.texts()) == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tb.Stop(ctx))
	require.NoError(t, <-done)
	assert.Contains(t, tb.api.last(), "/learn")
}
