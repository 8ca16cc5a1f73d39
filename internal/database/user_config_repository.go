package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nturan/flashgram-bot-sub000/pkg/models"
)

// UserConfigRepository stores per-user settings
type UserConfigRepository struct {
	db *sqlx.DB
}

// NewUserConfigRepository creates a new repository instance
func NewUserConfigRepository(db *sqlx.DB) *UserConfigRepository {
	return &UserConfigRepository{db: db}
}

// GetUserConfig retrieves user configuration, creating the default one on first access
func (r *UserConfigRepository) GetUserConfig(ctx context.Context, userID int64) (*models.UserConfig, error) {
	config, err := r.find(ctx, userID)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	config = models.DefaultUserConfig(userID)
	now := time.Now().UTC()
	config.CreatedAt = now
	config.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO user_configs (user_id, model, confirm_flashcards, cards_per_session, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err = r.db.ExecContext(ctx, query,
		config.UserID,
		config.Model,
		config.ConfirmFlashcards,
		config.CardsPerSession,
		config.CreatedAt,
		config.UpdatedAt,
	)
	if isUniqueViolation(err) {
		// Конфиг уже создан параллельным запросом
		return r.find(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user config: %w", err)
	}

	return config, nil
}

func (r *UserConfigRepository) find(ctx context.Context, userID int64) (*models.UserConfig, error) {
	query := r.db.Rebind(`
		SELECT user_id, model, confirm_flashcards, cards_per_session, created_at, updated_at
		FROM user_configs
		WHERE user_id = ?
	`)

	config := &models.UserConfig{}
	err := r.db.GetContext(ctx, config, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user config: %w", err)
	}
	return config, nil
}

// UpdateUserConfig updates user configuration
func (r *UserConfigRepository) UpdateUserConfig(ctx context.Context, config *models.UserConfig) error {
	query := r.db.Rebind(`
		UPDATE user_configs
		SET model = ?, confirm_flashcards = ?, cards_per_session = ?, updated_at = ?
		WHERE user_id = ?
	`)

	config.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		config.Model,
		config.ConfirmFlashcards,
		config.CardsPerSession,
		config.UpdatedAt,
		config.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user config: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdateSetting validates and stores a single setting
func (r *UserConfigRepository) UpdateSetting(ctx context.Context, userID int64, name, value string) (*models.UserConfig, error) {
	config, err := r.GetUserConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := config.UpdateSetting(name, value); err != nil {
		return nil, err
	}
	if err := r.UpdateUserConfig(ctx, config); err != nil {
		return nil, err
	}
	return config, nil
}
