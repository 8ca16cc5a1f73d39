package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a flashcard, word or config does not exist
var ErrNotFound = errors.New("not found")

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options describes how to reach the database
type Options struct {
	// Type is "sqlite" or "postgres"
	Type string
	// URL is the postgres connection string
	URL string
	// SQLitePath is the sqlite file; ":memory:" is allowed
	SQLitePath string
}

// Connect establishes a connection to the database and initializes the schema
func Connect(opts Options) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch opts.Type {
	case "postgres", "postgresql":
		if opts.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres")
		}
		db, err = sqlx.Connect(DriverPostgres, opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	case "", "sqlite", "sqlite3":
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join("data", "flashgram.db")
		}
		if path != ":memory:" {
			// Create data directory if it doesn't exist
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err = sqlx.Connect(DriverSQLite, path)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", opts.Type)
	}

	if err := InitializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// InitializeSchema creates necessary tables if they don't exist
func InitializeSchema(db *sqlx.DB) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == DriverPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}

	statements := []struct {
		name  string
		query string
	}{
		{"flashcards", `
			CREATE TABLE IF NOT EXISTS flashcards (
				id TEXT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				card_type TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				difficulty TEXT NOT NULL DEFAULT 'medium',
				content TEXT NOT NULL,
				due_date TIMESTAMP NOT NULL,
				interval_days INTEGER NOT NULL DEFAULT 1,
				ease_factor REAL NOT NULL DEFAULT 2.5,
				repetition_count INTEGER NOT NULL DEFAULT 0,
				times_correct INTEGER NOT NULL DEFAULT 0,
				times_incorrect INTEGER NOT NULL DEFAULT 0,
				last_reviewed TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)
		`},
		{"flashcards due index", `
			CREATE INDEX IF NOT EXISTS idx_flashcards_user_due ON flashcards (user_id, due_date)
		`},
		{"dictionary_words", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS dictionary_words (
				%s,
				user_id BIGINT NOT NULL,
				dictionary_form TEXT NOT NULL,
				word_type TEXT NOT NULL,
				flashcards_generated INTEGER NOT NULL DEFAULT 0,
				grammar_data TEXT NOT NULL DEFAULT '',
				processed_date TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE(user_id, dictionary_form, word_type)
			)
		`, idColumn)},
		{"user_configs", `
			CREATE TABLE IF NOT EXISTS user_configs (
				user_id BIGINT PRIMARY KEY,
				model TEXT NOT NULL,
				confirm_flashcards BOOLEAN NOT NULL DEFAULT false,
				cards_per_session INTEGER NOT NULL DEFAULT 20,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)
		`},
	}

	for _, st := range statements {
		if _, err := db.Exec(st.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.name, err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY constraint
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
