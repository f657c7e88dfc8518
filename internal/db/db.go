// Package db opens the SQLite database backing projects, assets and the
// timeline store, and applies the embedded migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// HeadDrift is a timeline document whose stored head disagrees with the
// revision table.
type HeadDrift struct {
	ProjectID      string
	Revision       int
	LatestRevision int
	HashMatches    bool
}

func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps commits for one project strictly ordered.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	d := &DB{conn: conn, logger: logger}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	drift, err := d.CheckTimelineHeads(context.Background())
	if err != nil {
		if logger != nil {
			logger.Warn("failed to check timeline heads", "error", err)
		}
	} else if logger != nil {
		for _, h := range drift {
			logger.Warn("timeline head disagrees with revision table",
				"project_id", h.ProjectID, "revision", h.Revision,
				"latest_revision", h.LatestRevision, "hash_matches", h.HashMatches)
		}
	}

	return d, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies each pending migration together with its _migrations row
// in one transaction, in file name order.
func (d *DB) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	if _, err := d.conn.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("failed to create _migrations: %w", err)
	}
	applied, err := d.appliedMigrations()
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || applied[name] {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := d.applyMigration(name, string(content)); err != nil {
			return err
		}
		if d.logger != nil {
			d.logger.Info("applied migration", "name", name)
		}
	}
	return nil
}

func (d *DB) appliedMigrations() (map[string]bool, error) {
	rows, err := d.conn.Query("SELECT name FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (d *DB) applyMigration(name, content string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// CheckTimelineHeads lists documents whose revision is not the newest
// revision row for the project, or whose hash differs from that row.
// A crash between the two writes of a commit would leave one behind.
func (d *DB) CheckTimelineHeads(ctx context.Context) ([]HeadDrift, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT d.project_id, d.revision, d.timeline_hash,
			COALESCE((SELECT MAX(r.revision) FROM timeline_revisions r WHERE r.project_id = d.project_id), 0),
			COALESCE((SELECT r.timeline_hash FROM timeline_revisions r
				WHERE r.project_id = d.project_id AND r.revision = d.revision), '')
		FROM timeline_documents d
		ORDER BY d.project_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline heads: %w", err)
	}
	defer rows.Close()

	var drift []HeadDrift
	for rows.Next() {
		var h HeadDrift
		var docHash, rowHash string
		if err := rows.Scan(&h.ProjectID, &h.Revision, &docHash, &h.LatestRevision, &rowHash); err != nil {
			return nil, err
		}
		h.HashMatches = docHash == rowHash
		if h.Revision != h.LatestRevision || !h.HashMatches {
			drift = append(drift, h)
		}
	}
	return drift, rows.Err()
}
