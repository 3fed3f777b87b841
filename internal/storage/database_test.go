package storage

import (
	"testing"
)

func TestNewAndMigrate(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Migrations must be idempotent
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	for _, table := range []string{"agents", "documents", "chunks", "question_topics", "question_clusters", "question_events", "ambiguity_events"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestNewInvalidPath(t *testing.T) {
	_, err := New("/nonexistent-dir/sub/test.db")
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
