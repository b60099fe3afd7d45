// Package sweep runs the periodic maintenance pass: old completed progress
// records are deleted per retention policy, and the invocation ledger is
// pruned alongside. A flock serializes sweeps across processes sharing the
// same progress root.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/TaskPilot/TaskPilot/internal/config"
	"github.com/TaskPilot/TaskPilot/internal/ledger"
	"github.com/TaskPilot/TaskPilot/internal/progress"
)

// Sweeper owns the cleanup tick loop.
type Sweeper struct {
	cfg    config.SweepConfig
	store  *progress.Store
	ledger *ledger.Ledger
	lock   *FileLock
	log    *slog.Logger
}

// New creates a Sweeper. ledger may be nil; only progress records are swept
// then.
func New(cfg config.SweepConfig, store *progress.Store, l *ledger.Ledger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return &Sweeper{
		cfg:    cfg,
		store:  store,
		ledger: l,
		lock:   NewFileLock(cfg.LockPath),
		log:    slog.Default(),
	}
}

// Run blocks until the context is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Sweeper started", "interval", s.cfg.Interval, "max_age", s.cfg.MaxAge)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sweeper) tick() {
	acquired, err := s.lock.TryLock()
	if err != nil {
		s.log.Warn("Sweep lock error", "error", err)
		return
	}
	if !acquired {
		s.log.Debug("Sweep skipped: lock held by another process")
		return
	}
	defer s.lock.Unlock()

	if _, err := s.Sweep(); err != nil {
		s.log.Warn("Sweep pass failed", "error", err)
	}
}

// Result aggregates one sweep pass across all projects.
type Result struct {
	Projects      int
	Deleted       int
	Kept          int
	KeptFailed    int
	LedgerPruned  int64
	DeletedRunIDs []string
}

// Sweep runs one cleanup pass immediately, without the lock or the loop.
// Callers needing cross-process exclusion go through Run.
func (s *Sweeper) Sweep() (Result, error) {
	var res Result

	projects, err := s.store.Projects()
	if err != nil {
		return res, err
	}
	for _, project := range projects {
		stats, err := s.store.Cleanup(project, s.cfg.MaxAge, s.cfg.KeepFailed)
		if err != nil {
			s.log.Warn("Cleanup failed for project", "project", project, "error", err)
			continue
		}
		res.Projects++
		res.Deleted += stats.Deleted
		res.Kept += stats.Kept
		res.KeptFailed += stats.KeptFailed
		res.DeletedRunIDs = append(res.DeletedRunIDs, stats.DeletedRunIDs...)
	}

	if s.ledger != nil {
		pruned, err := s.ledger.Prune(time.Now().Add(-s.cfg.MaxAge))
		if err != nil {
			s.log.Warn("Ledger prune failed", "error", err)
		} else {
			res.LedgerPruned = pruned
		}
	}

	s.log.Info("Sweep pass complete",
		"projects", res.Projects, "deleted", res.Deleted,
		"kept", res.Kept, "ledger_pruned", res.LedgerPruned)
	return res, nil
}
