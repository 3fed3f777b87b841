package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			title TEXT,
			hash TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (agent_id) REFERENCES agents(id),
			UNIQUE (agent_id, filename)
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			token_count INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			lexical TEXT NOT NULL,
			embedding_provider TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS question_topics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			topic_key TEXT NOT NULL,
			label TEXT NOT NULL,
			question_count INTEGER NOT NULL DEFAULT 0,
			answered_count INTEGER NOT NULL DEFAULT 0,
			unresolved_count INTEGER NOT NULL DEFAULT 0,
			ambiguous_count INTEGER NOT NULL DEFAULT 0,
			last_asked_at DATETIME,
			UNIQUE (agent_id, topic_key)
		);`,
		`CREATE TABLE IF NOT EXISTS question_clusters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic_id INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			normalized_key TEXT NOT NULL,
			representative_question TEXT NOT NULL,
			centroid TEXT,
			question_count INTEGER NOT NULL DEFAULT 0,
			last_answer TEXT,
			last_mode TEXT,
			last_confidence REAL,
			first_asked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_asked_at DATETIME,
			FOREIGN KEY (topic_id) REFERENCES question_topics(id),
			UNIQUE (agent_id, normalized_key)
		);`,
		`CREATE TABLE IF NOT EXISTS question_events (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			topic_id INTEGER NOT NULL,
			cluster_id INTEGER NOT NULL,
			question TEXT NOT NULL,
			normalized_question TEXT NOT NULL,
			embedding TEXT,
			answer TEXT,
			mode TEXT NOT NULL,
			confidence REAL NOT NULL,
			resolution TEXT NOT NULL,
			has_image_context INTEGER NOT NULL DEFAULT 0,
			selected_source_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (topic_id) REFERENCES question_topics(id),
			FOREIGN KEY (cluster_id) REFERENCES question_clusters(id)
		);`,
		`CREATE TABLE IF NOT EXISTS ambiguity_events (
			id TEXT PRIMARY KEY,
			question_event_id TEXT NOT NULL,
			alternatives TEXT NOT NULL,
			selected_source_id TEXT,
			resolved_at DATETIME,
			FOREIGN KEY (question_event_id) REFERENCES question_events(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_topic ON question_clusters(topic_id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_cluster ON question_events(cluster_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
