package bot

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nturan/flashgram-bot-sub000/internal/bulk"
	"github.com/nturan/flashgram-bot-sub000/internal/database"
	"github.com/nturan/flashgram-bot-sub000/internal/session"
	"github.com/nturan/flashgram-bot-sub000/internal/spaced_repetition"
	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// cardsWord склоняет слово «карточка» по числу
func cardsWord(n int) string {
	n %= 100
	switch {
	case n >= 11 && n <= 14:
		return "карточек"
	case n%10 == 1:
		return "карточка"
	case n%10 >= 2 && n%10 <= 4:
		return "карточки"
	}
	return "карточек"
}

func formatQuestion(card *models.Flashcard, step session.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 %s", card.Title)
	if step.Total > 0 {
		fmt.Fprintf(&b, "  (%d/%d)", step.Score, step.Total)
	}
	b.WriteString("\n\n")
	b.WriteString(card.Content.Question())

	switch c := card.Content.(type) {
	case models.FillInBlank:
		if c.BlankCount() > 1 {
			b.WriteString("\n\nВведите ответы через запятую.")
		}
	case models.MultipleChoice:
		if c.AllowMultiple {
			b.WriteString("\n\nНесколько вариантов: введите буквы, например «A C».")
		}
	}
	return b.String()
}

// questionButtons returns option buttons for single-answer multiple choice
// plus the edit and regenerate actions
func questionButtons(card *models.Flashcard) [][]MenuButton {
	var rows [][]MenuButton
	if mc, ok := card.Content.(models.MultipleChoice); ok && !mc.AllowMultiple {
		var row []MenuButton
		for i := range mc.Options {
			row = append(row, MenuButton{
				Text:         string(rune('A' + i)),
				CallbackData: fmt.Sprintf("%s%d", callbackChoicePrefix, i),
			})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []MenuButton{
		{Text: "✏️ Изменить", CallbackData: callbackEditPrefix + card.ID},
		{Text: "🔄 Перегенерировать", CallbackData: callbackRegenPrefix + card.ID},
	}, []MenuButton{
		{Text: "🗑 Удалить", CallbackData: callbackDeletePrefix + card.ID},
		{Text: "⏹ Завершить", CallbackData: callbackFinish},
	})
	return rows
}

func formatAnswer(res session.AnswerResult) string {
	var b strings.Builder
	if res.Correct {
		b.WriteString("✅ Верно!")
	} else {
		fmt.Fprintf(&b, "❌ Неверно. Правильный ответ: %s", res.CorrectAnswer)
	}
	fmt.Fprintf(&b, "\nСледующее повторение через %d %s.", res.Review.IntervalDays, daysWord(res.Review.IntervalDays))
	if !res.Saved {
		b.WriteString("\n⚠️ Не удалось сохранить прогресс по карточке.")
	}
	return b.String()
}

func formatFinished(step session.Step) string {
	if step.Total == 0 {
		return "🏁 Сессия завершена."
	}
	return fmt.Sprintf("🏁 Сессия завершена! Результат: %d/%d (%.0f%%).",
		step.Score, step.Total, float64(step.Score)*100/float64(step.Total))
}

func daysWord(n int) string {
	n %= 100
	switch {
	case n >= 11 && n <= 14:
		return "дней"
	case n%10 == 1:
		return "день"
	case n%10 >= 2 && n%10 <= 4:
		return "дня"
	}
	return "дней"
}

// editTemplate renders the card content as JSON the user can change and send back
func editTemplate(card *models.Flashcard) (string, error) {
	raw, err := json.Marshal(card.Content)
	if err != nil {
		return "", fmt.Errorf("failed to encode flashcard content: %w", err)
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("failed to decode flashcard content: %w", err)
	}
	fields["title"] = card.Title

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode edit template: %w", err)
	}
	return string(out), nil
}

func formatJob(job bulk.JobSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Задача %s: %s (%.1f%%)\n", job.JobID, statusText(job.Status), job.ProgressPercentage)
	fmt.Fprintf(&b, "Слов: %d/%d, карточек создано: %d, пропущено: %d",
		job.ProcessedWords, job.TotalWords, job.GeneratedFlashcards, job.SkippedWords)

	if len(job.FailedWords) > 0 {
		failed := make([]string, 0, len(job.FailedWords))
		for _, fw := range job.FailedWords {
			failed = append(failed, fmt.Sprintf("%s (%s)", fw.Word, fw.Reason))
		}
		fmt.Fprintf(&b, "\nОшибки: %s", strings.Join(failed, ", "))
	}
	if types := formatWordTypes(job.ProcessedWordTypes); types != "" {
		fmt.Fprintf(&b, "\nЧасти речи: %s", types)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n⚠️ %s", job.ErrorMessage)
	}
	return b.String()
}

func statusText(s bulk.Status) string {
	switch s {
	case bulk.StatusPending:
		return "в очереди"
	case bulk.StatusProcessing:
		return "обрабатывается"
	case bulk.StatusCompleted:
		return "готово"
	case bulk.StatusFailed:
		return "ошибка"
	}
	return string(s)
}

func formatWordTypes(types map[models.WordType]int) string {
	if len(types) == 0 {
		return ""
	}
	keys := make([]string, 0, len(types))
	for t := range types {
		keys = append(keys, string(t))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, types[models.WordType(k)]))
	}
	return strings.Join(parts, ", ")
}

// statsView collects everything shown by /stats
type statsView struct {
	Dashboard  *database.Dashboard
	Dictionary *database.DictionaryStats
	Deck       spaced_repetition.DeckStats
	Recent     []models.DictionaryWord
	Session    session.Snapshot
}

func formatStats(v statsView) string {
	var b strings.Builder
	b.WriteString("📊 Статистика\n\n")
	if d := v.Dashboard; d != nil {
		fmt.Fprintf(&b, "Всего карточек: %d\n", d.Total)
		fmt.Fprintf(&b, "К повторению сегодня: %d\n", d.DueToday)
		fmt.Fprintf(&b, "На этой неделе: %d\n", d.DueThisWeek)
		fmt.Fprintf(&b, "Новых: %d\n", d.New)
		fmt.Fprintf(&b, "Выучено: %d\n", d.Mastered)
	}
	if deck := v.Deck; deck.Total > 0 {
		fmt.Fprintf(&b, "Просрочено: %d, сложных: %d\n", deck.Overdue, deck.Difficult)
		fmt.Fprintf(&b, "Средний коэффициент лёгкости: %.2f\n", deck.AverageEase)
	}
	if dict := v.Dictionary; dict != nil {
		fmt.Fprintf(&b, "\nОбработано слов: %d (карточек из них: %d)\n", dict.TotalWords, dict.TotalFlashcards)
		if types := formatWordTypes(dict.ByType); types != "" {
			fmt.Fprintf(&b, "По частям речи: %s\n", types)
		}
	}
	if len(v.Recent) > 0 {
		words := make([]string, 0, len(v.Recent))
		for _, w := range v.Recent {
			words = append(words, w.DictionaryForm)
		}
		fmt.Fprintf(&b, "Последние слова: %s\n", strings.Join(words, ", "))
	}
	if snap := v.Session; snap.Mode == session.Learning {
		fmt.Fprintf(&b, "\nТекущая сессия: %d/%d, осталось %d\n", snap.Score, snap.Total, snap.Remaining)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatCards lists cards numbered from offset+1; ⭐ marks mastered ones
func formatCards(cards []models.Flashcard, offset int, now time.Time) string {
	var b strings.Builder
	b.WriteString("🗂 Ваши карточки\n")
	for i, card := range cards {
		mark := ""
		if spaced_repetition.IsMastered(card.Review) {
			mark = " ⭐"
		}
		fmt.Fprintf(&b, "\n%d. %s%s (%s)", offset+i+1, card.Title, mark, card.Type())
		if card.Review.IsDue(now) {
			b.WriteString(", к повторению")
		} else {
			days := int(math.Ceil(card.Review.DueDate.Sub(now).Hours() / 24))
			fmt.Fprintf(&b, ", через %d %s", days, daysWord(days))
		}
	}
	return b.String()
}

// cardButtons returns edit and delete buttons per card and the page navigation
func cardButtons(cards []models.Flashcard, offset, page int, hasNext bool) [][]MenuButton {
	rows := make([][]MenuButton, 0, len(cards)+1)
	for i, card := range cards {
		n := offset + i + 1
		rows = append(rows, []MenuButton{
			{Text: fmt.Sprintf("✏️ %d", n), CallbackData: callbackEditPrefix + card.ID},
			{Text: fmt.Sprintf("🗑 %d", n), CallbackData: callbackDeletePrefix + card.ID},
		})
	}

	var nav []MenuButton
	if page > 0 {
		nav = append(nav, MenuButton{Text: "⬅️", CallbackData: fmt.Sprintf("%s%d", callbackCardsPrefix, page-1)})
	}
	if hasNext {
		nav = append(nav, MenuButton{Text: "➡️", CallbackData: fmt.Sprintf("%s%d", callbackCardsPrefix, page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return rows
}

func formatSettings(cfg *models.UserConfig) string {
	var b strings.Builder
	b.WriteString("⚙️ Настройки\n\n")
	fmt.Fprintf(&b, "model: %s\n", cfg.Model)
	fmt.Fprintf(&b, "confirm_flashcards: %v\n", cfg.ConfirmFlashcards)
	fmt.Fprintf(&b, "cards_per_session: %d\n\n", cfg.CardsPerSession)

	names := make([]string, 0, len(models.SettingNames))
	for name := range models.SettingNames {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "• %s: %s\n", name, models.SettingNames[name])
	}
	b.WriteString("\nИзменить: /set <name> <value>")
	return b.String()
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "только что"
	case d < time.Hour:
		return fmt.Sprintf("%d мин назад", int(d.Minutes()))
	default:
		return fmt.Sprintf("%d ч назад", int(d.Hours()))
	}
}
