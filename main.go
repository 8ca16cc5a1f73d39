package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nturan/flashgram-bot-sub000/internal/ai"
	"github.com/nturan/flashgram-bot-sub000/internal/bot"
	"github.com/nturan/flashgram-bot-sub000/internal/bulk"
	"github.com/nturan/flashgram-bot-sub000/internal/config"
	"github.com/nturan/flashgram-bot-sub000/internal/database"
	"github.com/nturan/flashgram-bot-sub000/internal/dedup"
	"github.com/nturan/flashgram-bot-sub000/internal/scheduler"
	"github.com/nturan/flashgram-bot-sub000/internal/session"
	"github.com/nturan/flashgram-bot-sub000/internal/spaced_repetition"
)

func main() {
	// Создаем канал для сигналов
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Создаем контекст с отменой
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаемся к базе данных
	db, err := database.Connect(database.Options{Type: cfg.DBType, URL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	cards := database.NewFlashcardRepository(db)
	dictionary := database.NewDictionaryRepository(db)

	gpt, err := ai.New(cfg.OpenAIKey, cfg.LLMModel)
	if err != nil {
		log.Fatalf("Failed to create OpenAI client: %v", err)
	}

	jobs := bulk.NewManager(gpt, cards, dedup.NewCache(dictionary), bulk.Options{
		BatchSize:  cfg.BulkBatchSize,
		BatchDelay: cfg.BulkBatchDelay,
	})

	botConfig := bot.DefaultConfig()
	botConfig.DefaultCardsPerSession = cfg.CardsPerSession
	botConfig.AdminUserIDs = cfg.AdminUserIDs

	// Создаем бота
	b, err := bot.New(cfg.TelegramToken, bot.Deps{
		Cards:      cards,
		Configs:    database.NewUserConfigRepository(db),
		Dictionary: dictionary,
		Jobs:       jobs,
		Sessions:   session.NewMachine(cards, spaced_repetition.NewSM2()),
		Regenerator: func(model string) bot.Regenerator {
			return gpt.WithModel(model)
		},
		Tutor: func(model string) bot.Tutor {
			return gpt.WithModel(model)
		},
		Config: botConfig,
	})
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	// Планировщик: напоминания о карточках и очистка старых задач
	sched := scheduler.New(b, cards, jobs, scheduler.Options{
		StartHour: cfg.NotificationStartHour,
		EndHour:   cfg.NotificationEndHour,
		JobMaxAge: cfg.JobMaxAge,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	b.SetReminders(sched)

	// Канал для ожидания завершения бота
	done := make(chan struct{})

	// Горутина для обработки сигналов
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v\n", sig)
		cancel() // Отменяем контекст
		sched.Stop()

		// Даем время на graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := b.Stop(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}

		// Незавершенные задачи помечаются как failed
		jobs.Close()

		close(done) // Сигнализируем о завершении
	}()

	// Запускаем бота
	log.Println("Bot started. Press Ctrl+C to stop.")
	go func() {
		if err := b.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Bot error: %v", err)
		}
	}()

	// Ждем сигнала завершения
	<-done
	log.Println("Bot stopped successfully")
}
