package db

import (
	"context"
	"fmt"
)

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	-- Reference catalogue
	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		title_fr TEXT NOT NULL,
		title_ar TEXT NOT NULL,
		description_fr TEXT,
		description_ar TEXT,
		category TEXT NOT NULL,
		icon TEXT,
		estimated_time TEXT,
		difficulty TEXT CHECK(difficulty IN ('easy', 'medium', 'hard')),
		cost TEXT,
		offline INTEGER NOT NULL DEFAULT 0,
		requirements TEXT,  -- JSON array
		steps TEXT,         -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title_fr TEXT NOT NULL,
		title_ar TEXT NOT NULL,
		description_fr TEXT,
		description_ar TEXT,
		icon TEXT,
		processing_time TEXT,
		cost TEXT,
		offline INTEGER NOT NULL DEFAULT 0,
		requirements TEXT,  -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS procedures (
		id TEXT PRIMARY KEY,
		title_fr TEXT NOT NULL,
		title_ar TEXT NOT NULL,
		description_fr TEXT,
		description_ar TEXT,
		category TEXT NOT NULL,
		difficulty TEXT CHECK(difficulty IN ('easy', 'medium', 'hard')),
		estimated_time TEXT,
		cost TEXT,
		offline INTEGER NOT NULL DEFAULT 0,
		steps TEXT,         -- JSON array
		requirements TEXT,  -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS faq (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_fr TEXT NOT NULL UNIQUE,
		question_ar TEXT NOT NULL,
		answer_fr TEXT NOT NULL,
		answer_ar TEXT NOT NULL,
		category TEXT,
		tags TEXT,
		views INTEGER NOT NULL DEFAULT 0,
		helpful INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only client action log. No foreign keys: user_id is opaque.
	CREATE TABLE IF NOT EXISTS offline_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT,
		action_type TEXT NOT NULL,
		action_data TEXT NOT NULL DEFAULT 'null',  -- JSON
		timestamp TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		language TEXT NOT NULL DEFAULT 'fr' CHECK(language IN ('fr', 'ar')),
		theme TEXT NOT NULL DEFAULT 'light' CHECK(theme IN ('light', 'dark')),
		notifications INTEGER NOT NULL DEFAULT 1,
		offline_sync INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		expires_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_services_category ON services(category);
	CREATE INDEX IF NOT EXISTS idx_procedures_category ON procedures(category);
	CREATE INDEX IF NOT EXISTS idx_faq_views ON faq(views DESC);

	-- Pending listing and stats both filter by user first
	CREATE INDEX IF NOT EXISTS idx_queue_user_synced
	    ON offline_queue(user_id, synced, timestamp, id);
	CREATE INDEX IF NOT EXISTS idx_queue_type ON offline_queue(action_type);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// TableCounts returns the row count of each table, for status output.
func (db *DB) TableCounts(ctx context.Context) (map[string]int, error) {
	tables := []string{"services", "documents", "procedures", "faq", "offline_queue", "user_preferences", "cache"}
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		// table names come from the fixed list above
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
