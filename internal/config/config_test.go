package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{"LLM_MODEL", "DB_TYPE", "SQLITE_PATH", "ADMIN_USER_IDS", "BULK_BATCH_SIZE",
		"BULK_BATCH_DELAY", "JOB_MAX_AGE_HOURS", "DEFAULT_CARDS_PER_SESSION", "NOTIFICATION_START_HOUR", "NOTIFICATION_END_HOUR"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLMModel)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "data/flashgram.db", cfg.SQLitePath)
	assert.Equal(t, 3, cfg.BulkBatchSize)
	assert.Equal(t, time.Second, cfg.BulkBatchDelay)
	assert.Equal(t, 24*time.Hour, cfg.JobMaxAge)
	assert.Equal(t, 20, cfg.CardsPerSession)
	assert.Equal(t, DefaultNotificationStartHour, cfg.NotificationStartHour)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_TYPE", "Postgres")
	t.Setenv("ADMIN_USER_IDS", "1, 42")
	t.Setenv("BULK_BATCH_SIZE", "5")
	t.Setenv("BULK_BATCH_DELAY", "250ms")
	t.Setenv("JOB_MAX_AGE_HOURS", "2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, []int64{1, 42}, cfg.AdminUserIDs)
	assert.True(t, cfg.IsAdmin(42))
	assert.False(t, cfg.IsAdmin(7))
	assert.Equal(t, 5, cfg.BulkBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.BulkBatchDelay)
	assert.Equal(t, 2*time.Hour, cfg.JobMaxAge)
}

func TestFromEnvErrors(t *testing.T) {
	tbl := []struct {
		key, value string
	}{
		{"TELEGRAM_BOT_TOKEN", ""},
		{"OPENAI_API_KEY", ""},
		{"BULK_BATCH_SIZE", "0"},
		{"BULK_BATCH_DELAY", "soon"},
		{"ADMIN_USER_IDS", "admin"},
		{"NOTIFICATION_END_HOUR", "25"},
		{"DEFAULT_CARDS_PER_SESSION", "1000"},
	}

	for _, c := range tbl {
		t.Run(c.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(c.key, c.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, godotenv.Write(map[string]string{
		"TELEGRAM_BOT_TOKEN": "from-file",
		"OPENAI_API_KEY":     "sk-file",
	}, filepath.Join(dir, ".env")))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	// godotenv does not override variables that are already set
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.TelegramToken)
	assert.Equal(t, "sk-env", cfg.OpenAIKey)
}
