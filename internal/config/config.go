package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Константы для настроек уведомлений по умолчанию
const (
	DefaultNotificationStartHour = 4  // 8:00 по Москве, часы в UTC
	DefaultNotificationEndHour   = 18 // 22:00 по Москве
)

// Config is the process configuration read from the environment
type Config struct {
	TelegramToken string
	OpenAIKey     string
	LLMModel      string

	DBType      string
	DatabaseURL string
	SQLitePath  string

	AdminUserIDs []int64

	BulkBatchSize   int
	BulkBatchDelay  time.Duration
	JobMaxAge       time.Duration
	CardsPerSession int

	NotificationStartHour int
	NotificationEndHour   int
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		LLMModel:      getEnvOrDefault("LLM_MODEL", "gpt-4o"),
		DBType:        strings.ToLower(getEnvOrDefault("DB_TYPE", "sqlite")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    getEnvOrDefault("SQLITE_PATH", "data/flashgram.db"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	var err error
	if cfg.AdminUserIDs, err = parseIDs(os.Getenv("ADMIN_USER_IDS")); err != nil {
		return nil, err
	}
	if cfg.BulkBatchSize, err = getIntInRange("BULK_BATCH_SIZE", 3, 1, 100); err != nil {
		return nil, err
	}
	if cfg.CardsPerSession, err = getIntInRange("DEFAULT_CARDS_PER_SESSION", 20, 1, 100); err != nil {
		return nil, err
	}
	if cfg.BulkBatchDelay, err = getDuration("BULK_BATCH_DELAY", time.Second); err != nil {
		return nil, err
	}

	hours, err := getIntInRange("JOB_MAX_AGE_HOURS", 24, 1, 24*30)
	if err != nil {
		return nil, err
	}
	cfg.JobMaxAge = time.Duration(hours) * time.Hour

	if cfg.NotificationStartHour, err = getIntInRange("NOTIFICATION_START_HOUR", DefaultNotificationStartHour, 0, 23); err != nil {
		return nil, err
	}
	if cfg.NotificationEndHour, err = getIntInRange("NOTIFICATION_END_HOUR", DefaultNotificationEndHour, 0, 23); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsAdmin reports whether the user may run admin commands
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getIntInRange(key string, def, min, max int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be a number between %d and %d, got %q", key, min, max, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration like 1s, got %q", key, v)
	}
	return d, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_USER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
