package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mayowa2133/hookforge/internal/logging"
	"github.com/mayowa2133/hookforge/internal/store"
	"github.com/mayowa2133/hookforge/internal/timeline"
)

const (
	DefaultMaxBatchOps = 500
	DefaultUndoTTL     = 24 * time.Hour
	// MaxVariants bounds PreviewVariants fan-out.
	MaxVariants = 8
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// TimelineService is the commit path every timeline mutation goes through.
type TimelineService interface {
	CreateProject(ctx context.Context, name string) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	AddAsset(ctx context.Context, projectID string, kind timeline.TrackKind, filename string, durationMs int64) (*Asset, error)
	ListAssets(ctx context.Context, projectID string) ([]*Asset, error)
	GetTimeline(ctx context.Context, projectID string) (*store.Document, error)
	Preview(ctx context.Context, projectID string, ops []timeline.Operation) (timeline.Result, error)
	PreviewVariants(ctx context.Context, projectID string, batches [][]timeline.Operation) ([]timeline.Result, error)
	Apply(ctx context.Context, projectID string, ops []timeline.Operation, expectedRevision *int) (*ApplyOutcome, error)
	Undo(ctx context.Context, projectID, token string, force bool) (*UndoOutcome, error)
	Revisions(ctx context.Context, projectID string, limit int) ([]timeline.RevisionEntry, error)
}

// ApplyOutcome is the result of Apply. When Result.Valid is false nothing
// was persisted and UndoToken is empty.
type ApplyOutcome struct {
	Result    timeline.Result
	UndoToken string
	Lineage   timeline.Lineage
}

type UndoOutcome struct {
	State          *timeline.State
	TimelineHash   string
	Revision       int
	UndoneRevision int
}

type Options struct {
	MaxBatchOps int
	UndoTTL     time.Duration
	// Clock stamps revisions, undo tokens and documents. Defaults to UTC now.
	Clock func() time.Time
	// NewToken generates undo tokens. Defaults to random UUIDs.
	NewToken func() string
}

type Service struct {
	repo   Repository
	docs   store.DocumentStore
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ TimelineService = (*Service)(nil)

func NewService(repo Repository, docs store.DocumentStore, logger *slog.Logger, opts Options) *Service {
	if opts.MaxBatchOps <= 0 {
		opts.MaxBatchOps = DefaultMaxBatchOps
	}
	if opts.UndoTTL <= 0 {
		opts.UndoTTL = DefaultUndoTTL
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewToken == nil {
		opts.NewToken = uuid.NewString
	}
	return &Service{
		repo:   repo,
		docs:   docs,
		logger: logging.WithComponent(logging.OrDiscard(logger), "project"),
		opts:   opts,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lock serializes commits per project and returns the unlock func.
func (s *Service) lock(projectID string) func() {
	s.mu.Lock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Service) clock() timeline.Option {
	return timeline.WithClock(s.opts.Clock)
}

func (s *Service) CreateProject(ctx context.Context, name string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}

	p := &Project{ID: NewID(), Name: name, CreatedAt: s.opts.Clock()}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", p.ID)
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, nil
}

// AddAsset registers an uploaded file. An empty kind is inferred from the
// file extension. Assets only seed the timeline when it is first loaded.
func (s *Service) AddAsset(ctx context.Context, projectID string, kind timeline.TrackKind, filename string, durationMs int64) (*Asset, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if kind == "" {
		kind = KindForFilename(filename)
	}
	if kind != timeline.TrackKindVideo && kind != timeline.TrackKindAudio {
		return nil, fmt.Errorf("%w: asset kind must be VIDEO or AUDIO", ErrInvalidInput)
	}
	if durationMs < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", ErrInvalidInput)
	}

	a := &Asset{
		ID:         NewID(),
		ProjectID:  projectID,
		Kind:       kind,
		Filename:   filename,
		DurationMs: durationMs,
		CreatedAt:  s.opts.Clock(),
	}
	if err := s.repo.CreateAsset(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ListAssets(ctx context.Context, projectID string) ([]*Asset, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListAssets(ctx, projectID)
}

// GetTimeline returns the stored document, laying it out from the project's
// assets and committing revision 1 on first access.
func (s *Service) GetTimeline(ctx context.Context, projectID string) (*store.Document, error) {
	unlock := s.lock(projectID)
	defer unlock()
	return s.loadOrInit(ctx, projectID)
}

// loadOrInit must be called with the project lock held.
func (s *Service) loadOrInit(ctx context.Context, projectID string) (*store.Document, error) {
	doc, err := s.docs.LoadTimeline(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}

	assets, err := s.ListAssets(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state, err := timeline.NewState(seedAssets(assets), s.clock())
	if err != nil {
		return nil, err
	}
	hash, err := timeline.Hash(state)
	if err != nil {
		return nil, err
	}

	now := s.opts.Clock()
	if err := s.docs.CommitTimeline(ctx, store.Commit{
		ProjectID:    projectID,
		State:        state,
		TimelineHash: hash,
		At:           now,
	}); err != nil {
		return nil, fmt.Errorf("initialize timeline: %w", err)
	}

	logging.WithProjectID(s.logger, projectID).Info("timeline initialized", "assets", len(assets))
	return &store.Document{
		ProjectID:    projectID,
		State:        state,
		TimelineHash: hash,
		Revision:     state.Version,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) checkBatch(ops []timeline.Operation) error {
	batchOperations.Observe(float64(len(ops)))
	if len(ops) > s.opts.MaxBatchOps {
		return fmt.Errorf("%w: batch of %d operations exceeds limit of %d",
			timeline.ErrInvalidOperation, len(ops), s.opts.MaxBatchOps)
	}
	return nil
}

// Preview runs ops against the current document without persisting anything.
func (s *Service) Preview(ctx context.Context, projectID string, ops []timeline.Operation) (timeline.Result, error) {
	if err := s.checkBatch(ops); err != nil {
		return timeline.Result{}, err
	}
	doc, err := s.GetTimeline(ctx, projectID)
	if err != nil {
		return timeline.Result{}, err
	}

	res := timeline.Preview(doc.State, ops, s.clock())
	observeGateway("preview", res)
	return res, nil
}

// PreviewVariants previews each batch concurrently against one loaded base,
// returning results in batch order.
func (s *Service) PreviewVariants(ctx context.Context, projectID string, batches [][]timeline.Operation) ([]timeline.Result, error) {
	if len(batches) == 0 || len(batches) > MaxVariants {
		return nil, fmt.Errorf("%w: between 1 and %d variants are required", ErrInvalidInput, MaxVariants)
	}
	for _, ops := range batches {
		if err := s.checkBatch(ops); err != nil {
			return nil, err
		}
	}
	doc, err := s.GetTimeline(ctx, projectID)
	if err != nil {
		return nil, err
	}

	results := make([]timeline.Result, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, ops := range batches {
		i, ops := i, ops
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = timeline.Preview(doc.State, ops, s.clock())
			observeGateway("preview", results[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Apply commits ops when the gateway accepts them and issues an undo token
// for the change. A non-nil expectedRevision must equal the stored revision.
func (s *Service) Apply(ctx context.Context, projectID string, ops []timeline.Operation, expectedRevision *int) (*ApplyOutcome, error) {
	if err := s.checkBatch(ops); err != nil {
		return nil, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	doc, err := s.loadOrInit(ctx, projectID)
	if err != nil {
		return nil, err
	}
	logger := logging.WithProjectID(s.logger, projectID)

	if expectedRevision != nil && *expectedRevision != doc.Revision {
		commitTotal.WithLabelValues("conflict").Inc()
		return nil, fmt.Errorf("%w: expected revision %d, current revision %d",
			store.ErrRevisionConflict, *expectedRevision, doc.Revision)
	}

	res := timeline.Preview(doc.State, ops, s.clock())
	observeGateway("apply", res)
	if !res.Valid {
		commitTotal.WithLabelValues("rejected").Inc()
		logger.Info("operations rejected", "operations", len(ops), "issues", len(res.Issues))
		return &ApplyOutcome{Result: res}, nil
	}

	now := s.opts.Clock()
	tok, err := timeline.NewUndoToken(s.opts.NewToken(), projectID, doc.State, doc.TimelineHash, res.NextState, res.TimelineHash, now)
	if err != nil {
		return nil, err
	}

	if err := s.docs.CommitTimeline(ctx, store.Commit{
		ProjectID:    projectID,
		State:        res.NextState,
		TimelineHash: res.TimelineHash,
		BaseRevision: doc.Revision,
		IssueUndo:    tok,
		At:           now,
	}); err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			commitTotal.WithLabelValues("conflict").Inc()
		} else {
			commitTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	commitTotal.WithLabelValues("committed").Inc()
	logging.WithRevision(logger, res.Revision).Info("timeline committed",
		"operations", len(ops), "undo_token", logging.SanitizeToken(tok.Token))
	return &ApplyOutcome{Result: res, UndoToken: tok.Token, Lineage: tok.Lineage}, nil
}

// Undo reverts the batch that issued token. The revert is committed as a new
// revision; it is refused when newer commits exist unless force is set.
func (s *Service) Undo(ctx context.Context, projectID, token string, force bool) (*UndoOutcome, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: undo token is required", ErrInvalidInput)
	}

	unlock := s.lock(projectID)
	defer unlock()

	logger := logging.WithProjectID(s.logger, projectID)

	tok, err := s.docs.GetUndoToken(ctx, projectID, token)
	if err != nil {
		if errors.Is(err, store.ErrUndoTokenNotFound) {
			undoTotal.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}
	if tok.ConsumedAt != nil {
		undoTotal.WithLabelValues("consumed").Inc()
		return nil, store.ErrUndoTokenConsumed
	}
	if s.opts.Clock().Sub(tok.CreatedAt) > s.opts.UndoTTL {
		undoTotal.WithLabelValues("expired").Inc()
		return nil, fmt.Errorf("%w: token expired", store.ErrUndoTokenNotFound)
	}

	doc, err := s.docs.LoadTimeline(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		undoTotal.WithLabelValues("not_found").Inc()
		return nil, store.ErrUndoTokenNotFound
	}

	if err := tok.CheckCurrent(doc.Revision, doc.TimelineHash, force); err != nil {
		undoTotal.WithLabelValues("stale").Inc()
		logger.Info("stale undo rejected", "undo_token", logging.SanitizeToken(token),
			"applied_revision", tok.Lineage.AppliedRevision, "current_revision", doc.Revision)
		return nil, err
	}

	restored, err := tok.Restore(doc.State, s.clock())
	if err != nil {
		if errors.Is(err, timeline.ErrInvalidOperation) {
			undoTotal.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	if err := s.docs.CommitTimeline(ctx, store.Commit{
		ProjectID:    projectID,
		State:        restored.State,
		TimelineHash: restored.TimelineHash,
		BaseRevision: doc.Revision,
		ConsumeUndo:  token,
		At:           s.opts.Clock(),
	}); err != nil {
		if errors.Is(err, store.ErrUndoTokenConsumed) {
			undoTotal.WithLabelValues("consumed").Inc()
		}
		return nil, err
	}

	undoTotal.WithLabelValues("restored").Inc()
	if force {
		logger.Warn("forced undo committed", "undo_token", logging.SanitizeToken(token), "revision", restored.Revision)
	} else {
		logger.Info("undo committed", "undo_token", logging.SanitizeToken(token), "revision", restored.Revision)
	}
	return &UndoOutcome{
		State:          restored.State,
		TimelineHash:   restored.TimelineHash,
		Revision:       restored.Revision,
		UndoneRevision: tok.Lineage.AppliedRevision,
	}, nil
}

// Revisions lists the project's full revision history, most recent first.
func (s *Service) Revisions(ctx context.Context, projectID string, limit int) ([]timeline.RevisionEntry, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.docs.ListRevisions(ctx, projectID, limit)
}
