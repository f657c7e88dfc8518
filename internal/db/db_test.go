package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"config", "projects", "assets", "timeline_documents", "timeline_revisions", "undo_tokens", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}
}

func TestNew_AssetsCascadeWithProject(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	if _, err := conn.Exec(`INSERT INTO projects (id, name, created_at) VALUES ('p1', 'demo', datetime('now'))`); err != nil {
		t.Fatalf("insert project error = %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO assets (id, project_id, kind, filename, created_at) VALUES ('a1', 'p1', 'VIDEO', 'clip.mp4', datetime('now'))`); err != nil {
		t.Fatalf("insert asset error = %v", err)
	}
	if _, err := conn.Exec(`DELETE FROM projects WHERE id = 'p1'`); err != nil {
		t.Fatalf("delete project error = %v", err)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM assets").Scan(&count); err != nil {
		t.Fatalf("count assets error = %v", err)
	}
	if count != 0 {
		t.Errorf("assets after project delete = %d, want 0", count)
	}
}

func TestCheckTimelineHeads(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	stmts := []string{
		// p1 is consistent.
		`INSERT INTO timeline_documents VALUES ('p1', 2, 'h2', '{}', datetime('now'))`,
		`INSERT INTO timeline_revisions VALUES ('p1', 1, 'r1', 'h1', '[]', NULL, datetime('now'))`,
		`INSERT INTO timeline_revisions VALUES ('p1', 2, 'r2', 'h2', '[]', NULL, datetime('now'))`,
		// p2 has a document ahead of its revision rows.
		`INSERT INTO timeline_documents VALUES ('p2', 3, 'h3', '{}', datetime('now'))`,
		`INSERT INTO timeline_revisions VALUES ('p2', 2, 'r2', 'h2', '[]', NULL, datetime('now'))`,
		// p3 has the right revision but a different hash.
		`INSERT INTO timeline_documents VALUES ('p3', 1, 'other', '{}', datetime('now'))`,
		`INSERT INTO timeline_revisions VALUES ('p3', 1, 'r1', 'h1', '[]', NULL, datetime('now'))`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("exec %q error = %v", stmt, err)
		}
	}

	drift, err := database.CheckTimelineHeads(context.Background())
	if err != nil {
		t.Fatalf("CheckTimelineHeads() error = %v", err)
	}
	if len(drift) != 2 {
		t.Fatalf("drift = %+v, want 2 entries", drift)
	}
	if drift[0].ProjectID != "p2" || drift[0].Revision != 3 || drift[0].LatestRevision != 2 {
		t.Errorf("drift[0] = %+v, want p2 at 3 with latest 2", drift[0])
	}
	if drift[1].ProjectID != "p3" || drift[1].HashMatches {
		t.Errorf("drift[1] = %+v, want p3 with mismatched hash", drift[1])
	}
}
