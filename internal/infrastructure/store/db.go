// Package store persists conversations and analysis results in SQLite and
// provides the in-memory cache layered on top of the durable store.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT,
	team_id TEXT,
	created_at TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender TEXT,
	body TEXT,
	system INTEGER,
	sent_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE TABLE IF NOT EXISTS analyses (
	conversation_id TEXT PRIMARY KEY,
	summary TEXT,
	primary_category TEXT,
	secondary_categories TEXT,
	confidence REAL,
	message_count INTEGER,
	generated_at TEXT,
	metrics TEXT
);
`

// Open creates (or opens) the SQLite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}

// DefaultPath returns ~/.taskora/taskora.db.
func DefaultPath() string {
	return filepath.Join(userHome(), ".taskora", "taskora.db")
}

func userHome() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
