package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

// BadgerConfig configures a Badger-backed store.
type BadgerConfig struct {
	// Path is ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives Badger's internal logs. Nil silences them.
	Logger *slog.Logger
	// GCDiscardRatio is passed to value log GC.
	GCDiscardRatio float64
}

func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true, GCDiscardRatio: 0.5}
}

func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps each document as one value under timeline/{project}/doc,
// revisions under timeline/{project}/rev/{revision} and undo tokens under
// undo/{project}/{token}.
type BadgerStore struct {
	db       *badger.DB
	inMemory bool
	discard  float64
}

var (
	_ DocumentStore    = (*BadgerStore)(nil)
	_ GarbageCollector = (*BadgerStore)(nil)
)

// badgerDocument is the value stored under the doc key.
type badgerDocument struct {
	Revision     int             `json:"revision"`
	TimelineHash string          `json:"timelineHash"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Document     json.RawMessage `json:"document"`
}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	discard := cfg.GCDiscardRatio
	if discard <= 0 || discard >= 1 {
		discard = 0.5
	}
	return &BadgerStore{db: db, inMemory: cfg.InMemory, discard: discard}, nil
}

func docKey(projectID string) []byte {
	return []byte("timeline/" + projectID + "/doc")
}

func revisionPrefix(projectID string) []byte {
	return []byte("timeline/" + projectID + "/rev/")
}

func revisionKey(projectID string, revision int) []byte {
	return []byte(fmt.Sprintf("timeline/%s/rev/%010d", projectID, revision))
}

const undoPrefix = "undo/"

func undoKey(projectID, token string) []byte {
	return []byte(undoPrefix + projectID + "/" + token)
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) LoadTimeline(ctx context.Context, projectID string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stored badgerDocument
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, docKey(projectID), &stored)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state, err := timeline.Decode(stored.Document)
	if err != nil {
		return nil, fmt.Errorf("decode timeline for project %s: %w", projectID, err)
	}
	return &Document{
		ProjectID:    projectID,
		State:        state,
		TimelineHash: stored.TimelineHash,
		Revision:     stored.Revision,
		UpdatedAt:    stored.UpdatedAt,
	}, nil
}

func (s *BadgerStore) CommitTimeline(ctx context.Context, c Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := timeline.Encode(c.State)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var current badgerDocument
		if err := getJSON(txn, docKey(c.ProjectID), &current); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if current.Revision != c.BaseRevision {
			return fmt.Errorf("%w: stored revision %d, base revision %d", ErrRevisionConflict, current.Revision, c.BaseRevision)
		}

		at := c.At.UTC()
		if err := setJSON(txn, docKey(c.ProjectID), badgerDocument{
			Revision:     c.State.Version,
			TimelineHash: c.TimelineHash,
			UpdatedAt:    at,
			Document:     payload,
		}); err != nil {
			return err
		}

		if head := c.State.Head(); head != nil {
			if err := setJSON(txn, revisionKey(c.ProjectID, head.Revision), head); err != nil {
				return err
			}
		}

		if c.ConsumeUndo != "" {
			var t timeline.UndoToken
			err := getJSON(txn, undoKey(c.ProjectID, c.ConsumeUndo), &t)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrUndoTokenNotFound
			}
			if err != nil {
				return err
			}
			if t.ConsumedAt != nil {
				return ErrUndoTokenConsumed
			}
			t.ConsumedAt = &at
			if err := setJSON(txn, undoKey(c.ProjectID, c.ConsumeUndo), t); err != nil {
				return err
			}
		}

		if c.IssueUndo != nil {
			return setJSON(txn, undoKey(c.ProjectID, c.IssueUndo.Token), c.IssueUndo)
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: concurrent commit for project %s", ErrRevisionConflict, c.ProjectID)
	}
	return err
}

func (s *BadgerStore) ListRevisions(ctx context.Context, projectID string, limit int) ([]timeline.RevisionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	revisions := []timeline.RevisionEntry{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := revisionPrefix(projectID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var entry timeline.RevisionEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			revisions = append(revisions, entry)
			if limit > 0 && len(revisions) >= limit {
				break
			}
		}
		return nil
	})
	return revisions, err
}

func (s *BadgerStore) GetUndoToken(ctx context.Context, projectID, token string) (*timeline.UndoToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var t timeline.UndoToken
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, undoKey(projectID, token), &t)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrUndoTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BadgerStore) PruneUndoTokens(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(undoPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var t timeline.UndoToken
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			if t.CreatedAt.Before(before) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// CollectGarbage runs one value log GC pass. In-memory stores have no value log.
func (s *BadgerStore) CollectGarbage() error {
	if s.inMemory {
		return nil
	}
	err := s.db.RunValueLogGC(s.discard)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
