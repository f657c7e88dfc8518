// Package store persists timeline documents, their revision history and the
// undo-token log. Two backends are provided: SQLite (the default, sharing the
// project database) and Badger (an embedded key-value store).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

var (
	// ErrRevisionConflict is returned when a commit's base revision is no
	// longer the stored revision.
	ErrRevisionConflict  = errors.New("revision conflict")
	ErrUndoTokenNotFound = errors.New("undo token not found")
	ErrUndoTokenConsumed = errors.New("undo token already consumed")
)

// timeFormat has fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Document is the stored head of a project's timeline.
type Document struct {
	ProjectID    string
	State        *timeline.State
	TimelineHash string
	Revision     int
	UpdatedAt    time.Time
}

// Commit describes one atomic write of a timeline document. BaseRevision is
// the revision the caller read, or 0 when the document does not exist yet.
// IssueUndo is recorded alongside the document; ConsumeUndo names a token
// that is marked consumed in the same write.
type Commit struct {
	ProjectID    string
	State        *timeline.State
	TimelineHash string
	BaseRevision int
	IssueUndo    *timeline.UndoToken
	ConsumeUndo  string
	At           time.Time
}

// DocumentStore is implemented by every timeline backend.
type DocumentStore interface {
	// LoadTimeline returns nil, nil when the project has no document.
	LoadTimeline(ctx context.Context, projectID string) (*Document, error)
	CommitTimeline(ctx context.Context, c Commit) error
	// ListRevisions returns revisions most recent first. limit <= 0 means all.
	ListRevisions(ctx context.Context, projectID string, limit int) ([]timeline.RevisionEntry, error)
	GetUndoToken(ctx context.Context, projectID, token string) (*timeline.UndoToken, error)
	// PruneUndoTokens deletes tokens created before the cutoff, consumed or not.
	PruneUndoTokens(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// GarbageCollector is implemented by backends that need periodic compaction.
type GarbageCollector interface {
	CollectGarbage() error
}
