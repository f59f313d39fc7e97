// Package state persists session identifiers (active conversation, active
// note, selected model) across restarts and revalidates them against the
// backend on startup.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Keys of the persisted session identifiers.
const (
	keyActiveChat = "active_chat"
	keyActiveNote = "active_note"
	keyModel      = "model"
)

// Database handles SQLite operations for session state
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database := &Database{db: db, dbPath: dbPath}

	// Initialize schema
	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// migrate ensures the database schema is up to date
func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := d.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create initial schema: %w", err)
	}
	return nil
}

// get gets a persisted value; a missing key is the empty string.
func (d *Database) get(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM session WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// set sets a persisted value
func (d *Database) set(key, value string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO session (key, value, updated_at) VALUES (?, ?, ?)
	`, key, value, time.Now())
	return err
}

// ActiveChat returns the persisted active conversation id.
func (d *Database) ActiveChat() (string, error) {
	return d.get(keyActiveChat)
}

// SetActiveChat persists the active conversation id.
func (d *Database) SetActiveChat(chatID string) error {
	return d.set(keyActiveChat, chatID)
}

// ActiveNote returns the persisted active note id.
func (d *Database) ActiveNote() (string, error) {
	return d.get(keyActiveNote)
}

// SetActiveNote persists the active note id.
func (d *Database) SetActiveNote(noteID string) error {
	return d.set(keyActiveNote, noteID)
}

// Model returns the persisted model selection.
func (d *Database) Model() (string, error) {
	return d.get(keyModel)
}

// SetModel persists the model selection.
func (d *Database) SetModel(model string) error {
	return d.set(keyModel, model)
}
