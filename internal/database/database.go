package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the club's SQLite database.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrSlotTaken        = errors.New("slot already claimed")
	ErrNotClaimant      = errors.New("only the claimant may cancel")
	ErrClaimNotFound    = errors.New("claim not found")
	ErrClaimStarted     = errors.New("claim has already started")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrProfileExists    = errors.New("profile already exists")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrPostNotFound     = errors.New("post not found")
	ErrFestivalNotFound = errors.New("festival not found")
	ErrShareCooldown    = errors.New("share cooldown active")
)

// NewDB opens the database and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			primary_sauna TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			nickname TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			motto TEXT NOT NULL DEFAULT '',
			qualifications TEXT NOT NULL DEFAULT '[]',
			awards TEXT NOT NULL DEFAULT '[]',
			aufguss_count INTEGER NOT NULL DEFAULT 0,
			work_hours REAL NOT NULL DEFAULT 0,
			short_notice_cancellations INTEGER NOT NULL DEFAULT 0,
			is_admin BOOLEAN NOT NULL DEFAULT 0,
			show_in_member_list BOOLEAN NOT NULL DEFAULT 1,
			permissions TEXT NOT NULL DEFAULT '[]',
			telegram_chat_id INTEGER NOT NULL DEFAULT 0,
			last_profile_update DATETIME,
			last_aufguss_share_timestamp DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS aufguss_claims (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sauna_name TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			claimed_by TEXT NOT NULL,
			aufguss_type TEXT NOT NULL,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			tallied BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(sauna_name, start_time),
			FOREIGN KEY(claimed_by) REFERENCES profiles(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_start ON aufguss_claims(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_claimed_by ON aufguss_claims(claimed_by)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_reminder ON aufguss_claims(reminder_sent, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_tallied ON aufguss_claims(tallied, end_time)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			poll_options TEXT NOT NULL DEFAULT '[]',
			votes TEXT NOT NULL DEFAULT '{}',
			image_url TEXT NOT NULL DEFAULT '',
			embed_url TEXT NOT NULL DEFAULT '',
			likes TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS festivals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_festivals_start ON festivals(start_date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", q, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// ts normalizes a timestamp for storage so equal instants compare equal as text.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// IsUnavailable reports whether err means the database is busy or locked.
func IsUnavailable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return errors.Is(err, sql.ErrConnDone)
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// withTx runs fn in a transaction and commits if it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
