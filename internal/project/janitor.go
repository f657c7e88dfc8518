package project

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mayowa2133/hookforge/internal/logging"
	"github.com/mayowa2133/hookforge/internal/store"
)

const (
	DefaultJanitorInterval = 10 * time.Minute
	lastPruneConfigKey     = "janitor.last_prune_at"
)

// Janitor periodically prunes undo tokens older than the TTL and compacts
// backends that support it.
type Janitor struct {
	docs     store.DocumentStore
	repo     Repository
	logger   *slog.Logger
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
	running  atomic.Bool
	paused   atomic.Bool
}

// NewJanitor builds a janitor. repo may be nil, in which case the time of the
// last prune is not recorded.
func NewJanitor(docs store.DocumentStore, repo Repository, logger *slog.Logger, interval, ttl time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	if ttl <= 0 {
		ttl = DefaultUndoTTL
	}
	return &Janitor{
		docs:     docs,
		repo:     repo,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "janitor"),
		interval: interval,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (j *Janitor) Start(ctx context.Context) {
	if j.running.Swap(true) {
		return
	}

	j.logger.Info("janitor started", "interval", j.interval, "ttl", j.ttl)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopping")
			j.running.Store(false)
			return
		case <-ticker.C:
			if !j.paused.Load() {
				j.Sweep(ctx)
			}
		}
	}
}

func (j *Janitor) Pause() {
	j.paused.Store(true)
	j.logger.Info("janitor paused")
}

func (j *Janitor) Resume() {
	j.paused.Store(false)
	j.logger.Info("janitor resumed")
}

func (j *Janitor) IsPaused() bool {
	return j.paused.Load()
}

func (j *Janitor) IsRunning() bool {
	return j.running.Load()
}

// Sweep runs one prune pass and returns how many tokens were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	now := j.now()
	n, err := j.docs.PruneUndoTokens(ctx, now.Add(-j.ttl))
	if err != nil {
		j.logger.Error("failed to prune undo tokens", "error", err)
		return 0
	}
	undoPruned.Add(float64(n))
	if n > 0 {
		j.logger.Info("pruned undo tokens", "count", n)
	}

	if gc, ok := j.docs.(store.GarbageCollector); ok {
		if err := gc.CollectGarbage(); err != nil {
			j.logger.Warn("store garbage collection failed", "error", err)
		}
	}

	if j.repo != nil {
		if err := j.repo.SetConfig(ctx, lastPruneConfigKey, now.Format(time.RFC3339)); err != nil {
			j.logger.Warn("failed to record prune time", "error", err)
		}
	}
	return n
}

// LastSweep returns when Sweep last completed, or the zero time.
func (j *Janitor) LastSweep(ctx context.Context) time.Time {
	if j.repo == nil {
		return time.Time{}
	}
	v, err := j.repo.GetConfig(ctx, lastPruneConfigKey)
	if err != nil || v == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, v)
	return t
}
