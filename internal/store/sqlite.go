package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

// SQLiteStore keeps timelines in the tables created by internal/db migrations.
type SQLiteStore struct {
	db    *sql.DB
	retry retryConfig
}

var _ DocumentStore = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, retry: defaultRetryConfig}
}

func (s *SQLiteStore) LoadTimeline(ctx context.Context, projectID string) (*Document, error) {
	var (
		doc       Document
		payload   string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT revision, timeline_hash, document, updated_at
		FROM timeline_documents WHERE project_id = ?
	`, projectID).Scan(&doc.Revision, &doc.TimelineHash, &payload, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state, err := timeline.Decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode timeline for project %s: %w", projectID, err)
	}
	doc.ProjectID = projectID
	doc.State = state
	doc.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &doc, nil
}

func (s *SQLiteStore) CommitTimeline(ctx context.Context, c Commit) error {
	payload, err := timeline.Encode(c.State)
	if err != nil {
		return err
	}
	return retryOp(s.retry, func() error {
		return s.commit(ctx, c, payload)
	})
}

func (s *SQLiteStore) commit(ctx context.Context, c Commit, payload []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, "SELECT revision FROM timeline_documents WHERE project_id = ?", c.ProjectID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if current != c.BaseRevision {
		return fmt.Errorf("%w: stored revision %d, base revision %d", ErrRevisionConflict, current, c.BaseRevision)
	}

	at := c.At.UTC().Format(timeFormat)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO timeline_documents (project_id, revision, timeline_hash, document, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			revision = excluded.revision,
			timeline_hash = excluded.timeline_hash,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, c.ProjectID, c.State.Version, c.TimelineHash, string(payload), at); err != nil {
		return err
	}

	if head := c.State.Head(); head != nil {
		ops, err := json.Marshal(head.Operations)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timeline_revisions (project_id, revision, id, timeline_hash, operations, undo_of, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ProjectID, head.Revision, head.ID, head.TimelineHash, string(ops), nullInt(head.UndoOf), head.CreatedAt.UTC().Format(timeFormat)); err != nil {
			return err
		}
	}

	if c.ConsumeUndo != "" {
		if err := consumeUndoToken(ctx, tx, c.ProjectID, c.ConsumeUndo, at); err != nil {
			return err
		}
	}

	if t := c.IssueUndo; t != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO undo_tokens (token, project_id, base_revision, base_timeline_hash, applied_revision, applied_timeline_hash, snapshot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, t.Token, t.ProjectID, t.Lineage.BaseRevision, t.Lineage.BaseTimelineHash,
			t.Lineage.AppliedRevision, t.Lineage.AppliedTimelineHash, string(t.Snapshot), t.CreatedAt.UTC().Format(timeFormat)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func consumeUndoToken(ctx context.Context, tx *sql.Tx, projectID, token, at string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE undo_tokens SET consumed_at = ?
		WHERE token = ? AND project_id = ? AND consumed_at IS NULL
	`, at, token, projectID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM undo_tokens WHERE token = ? AND project_id = ?", token, projectID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrUndoTokenNotFound
	}
	if err != nil {
		return err
	}
	return ErrUndoTokenConsumed
}

func (s *SQLiteStore) ListRevisions(ctx context.Context, projectID string, limit int) ([]timeline.RevisionEntry, error) {
	query := `
		SELECT revision, id, timeline_hash, operations, undo_of, created_at
		FROM timeline_revisions WHERE project_id = ?
		ORDER BY revision DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	revisions := []timeline.RevisionEntry{}
	for rows.Next() {
		var (
			entry     timeline.RevisionEntry
			ops       string
			undoOf    sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&entry.Revision, &entry.ID, &entry.TimelineHash, &ops, &undoOf, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ops), &entry.Operations); err != nil {
			return nil, fmt.Errorf("decode operations of revision %d: %w", entry.Revision, err)
		}
		entry.UndoOf = int(undoOf.Int64)
		entry.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		revisions = append(revisions, entry)
	}
	return revisions, rows.Err()
}

func (s *SQLiteStore) GetUndoToken(ctx context.Context, projectID, token string) (*timeline.UndoToken, error) {
	var (
		t          timeline.UndoToken
		snapshot   string
		createdAt  string
		consumedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, project_id, base_revision, base_timeline_hash, applied_revision, applied_timeline_hash, snapshot, created_at, consumed_at
		FROM undo_tokens WHERE token = ? AND project_id = ?
	`, token, projectID).Scan(&t.Token, &t.ProjectID, &t.Lineage.BaseRevision, &t.Lineage.BaseTimelineHash,
		&t.Lineage.AppliedRevision, &t.Lineage.AppliedTimelineHash, &snapshot, &createdAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUndoTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Snapshot = json.RawMessage(snapshot)
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if consumedAt.Valid {
		ts, _ := time.Parse(timeFormat, consumedAt.String)
		t.ConsumedAt = &ts
	}
	return &t, nil
}

func (s *SQLiteStore) PruneUndoTokens(ctx context.Context, before time.Time) (int, error) {
	var n int64
	err := retryOp(s.retry, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM undo_tokens WHERE created_at < ?", before.UTC().Format(timeFormat))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// Close is a no-op; the connection belongs to internal/db.
func (s *SQLiteStore) Close() error {
	return nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
