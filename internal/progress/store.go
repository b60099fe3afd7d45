package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const progressDirName = ".progress"

// Store persists one record per (project, run_id) under a root directory.
// A run's record is owned by exactly one writing process for its lifetime,
// so per-record writes are totally ordered; atomicity against readers comes
// from write-to-temp-then-rename.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a Store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

func (s *Store) dir(project string) string {
	return filepath.Join(s.root, sanitizeKey(project), progressDirName)
}

func (s *Store) path(project, runID string) string {
	return filepath.Join(s.dir(project), sanitizeKey(runID)+".json")
}

// sanitizeKey strips path separators and traversal components so project
// names and run ids cannot escape the store root.
func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "\\", "_")
	key = strings.ReplaceAll(key, "..", "_")
	return filepath.Base(key)
}

// Write persists the full record, creating parent directories as needed.
// There are no partial-field semantics: callers read-modify-write whole
// records via Update.
func (s *Store) Write(project string, rec *Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("progress: record has no run_id")
	}
	dir := s.dir(project)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("progress: create dir: %w", err)
	}
	out := cloneRecord(rec)
	if out.ArtifactsCreated == nil {
		out.ArtifactsCreated = []string{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal record: %w", err)
	}
	path := s.path(project, rec.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("progress: write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("progress: rename record: %w", err)
	}
	return nil
}

// Read loads the record for a run. Returns *NotFoundError if no record
// exists.
func (s *Store) Read(project, runID string) (*Record, error) {
	return s.readPath(project, runID, s.path(project, runID))
}

func (s *Store) readPath(project, runID, path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Project: project, RunID: runID}
		}
		return nil, fmt.Errorf("progress: read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("progress: decode record %s: %w", path, err)
	}
	return &rec, nil
}

// List returns all active (non-archived) records for a project. Corrupted
// files are skipped.
func (s *Store) List(project string) ([]*Record, error) {
	return s.listDir(project, s.dir(project))
}

// ListArchived returns all archived records for a project.
func (s *Store) ListArchived(project string) ([]*Record, error) {
	return s.listDir(project, filepath.Join(s.dir(project), "archive"))
}

func (s *Store) listDir(project, dir string) ([]*Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress: list records: %w", err)
	}
	var out []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.readPath(project, strings.TrimSuffix(entry.Name(), ".json"), filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Debug("Skipping unreadable progress record", "path", entry.Name(), "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Projects returns the project keys that have a progress directory under
// the store root.
func (s *Store) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress: list projects: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), progressDirName)); err == nil {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}

// Update applies mutate to the current record and writes the result back.
// The full record is always loaded first, so concurrent writes to other
// fields by the same owner are never lost. Returns *NotFoundError if the
// record does not exist; callers must not synthesize one implicitly.
//
// Two invariants are enforced here: the status of a terminal record can
// never change (ErrTerminal), and last_heartbeat never moves backwards.
func (s *Store) Update(project, runID string, mutate func(*Record)) (*Record, error) {
	rec, err := s.Read(project, runID)
	if err != nil {
		return nil, err
	}
	prevStatus := rec.Status
	prevHeartbeat := rec.LastHeartbeat
	mutate(rec)
	if prevStatus.Terminal() && rec.Status != prevStatus {
		return nil, ErrTerminal
	}
	if rec.LastHeartbeat.Before(prevHeartbeat) {
		rec.LastHeartbeat = prevHeartbeat
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("progress: invalid status %q", rec.Status)
	}
	if err := s.Write(project, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Heartbeat refreshes last_heartbeat and optionally phase and message count.
func (s *Store) Heartbeat(project, runID, phase string, messages int) (*Record, error) {
	now := s.now()
	return s.Update(project, runID, func(r *Record) {
		r.LastHeartbeat = now
		if phase != "" {
			r.Phase = phase
		}
		if messages >= 0 {
			r.MessagesProcessed = messages
		}
	})
}

// MarkCompleted writes the single terminal completed state for a run.
func (s *Store) MarkCompleted(project, runID, summary string, artifacts []string) (*Record, error) {
	now := s.now()
	return s.Update(project, runID, func(r *Record) {
		r.Status = StatusCompleted
		r.LastHeartbeat = now
		r.ResultSummary = summary
		if artifacts != nil {
			r.ArtifactsCreated = artifacts
		}
	})
}

// MarkFailed writes the single terminal failed state for a run.
func (s *Store) MarkFailed(project, runID, errMsg string) (*Record, error) {
	now := s.now()
	return s.Update(project, runID, func(r *Record) {
		r.Status = StatusFailed
		r.LastHeartbeat = now
		r.Error = errMsg
	})
}

// IsStale reports whether the record's heartbeat is older than threshold.
// Pure function of the record and threshold; the store runs no background
// staleness daemon.
func (s *Store) IsStale(rec *Record, threshold time.Duration) bool {
	return rec.StaleAt(s.now(), threshold)
}

// WaitOptions configures Wait.
type WaitOptions struct {
	Timeout        time.Duration
	PollInterval   time.Duration
	StaleThreshold time.Duration
}

// DefaultWaitOptions mirrors the defaults used by the CLI: ten minute
// timeout, five second polls, five minute stale threshold.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Timeout:        10 * time.Minute,
		PollInterval:   5 * time.Second,
		StaleThreshold: 5 * time.Minute,
	}
}

// Wait polls until the run reaches a terminal state. It distinguishes three
// failure causes and never conflates them:
//
//   - *NotFoundError: the record never appeared (after a grace period of
//     2 x poll interval, to tolerate a spawn that has not created it yet)
//   - *TimeoutError: the timeout elapsed while the run was still alive
//   - *StaleError: the record exists but stopped heartbeating
//
// Wait never blocks the producer and never stops the underlying invocation;
// a timed-out run may still complete later and update its record.
func (s *Store) Wait(ctx context.Context, project, runID string, opts WaitOptions) (*Record, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 5 * time.Minute
	}

	start := s.now()
	grace := 2 * opts.PollInterval

	for {
		elapsed := s.now().Sub(start)

		rec, err := s.Read(project, runID)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				if elapsed < grace {
					if err := sleepCtx(ctx, opts.PollInterval); err != nil {
						return nil, err
					}
					continue
				}
				return nil, nf
			}
			return nil, err
		}

		// Timeout is only checked once the record is known to exist.
		if elapsed > opts.Timeout {
			return rec, &TimeoutError{RunID: runID, Timeout: opts.Timeout, LastStatus: rec.Status}
		}

		if rec.Status.Terminal() {
			return rec, nil
		}

		if s.IsStale(rec, opts.StaleThreshold) {
			return rec, &StaleError{RunID: runID, Threshold: opts.StaleThreshold, Phase: rec.Phase}
		}

		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CleanupStats summarizes a Cleanup pass.
type CleanupStats struct {
	Deleted       int
	DeletedRunIDs []string
	Kept          int
	KeptFailed    int
}

// Cleanup deletes completed records older than maxAge. Failed records are
// kept unless keepFailed is false: they carry diagnostic value. Running and
// pending records are never deleted regardless of age; staleness is a
// read-time interpretation, not a deletion trigger. Corrupted files are
// removed.
func (s *Store) Cleanup(project string, maxAge time.Duration, keepFailed bool) (CleanupStats, error) {
	var stats CleanupStats
	dir := s.dir(project)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("progress: cleanup: %w", err)
	}

	cutoff := s.now().Add(-maxAge)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rec, err := s.readPath(project, strings.TrimSuffix(entry.Name(), ".json"), path)
		if err != nil {
			if os.Remove(path) == nil {
				stats.Deleted++
				stats.DeletedRunIDs = append(stats.DeletedRunIDs, strings.TrimSuffix(entry.Name(), ".json"))
			}
			continue
		}

		old := rec.LastHeartbeat.Before(cutoff)

		if rec.Status == StatusFailed {
			if keepFailed || !old {
				stats.Kept++
				stats.KeptFailed++
				continue
			}
			if err := os.Remove(path); err == nil {
				stats.Deleted++
				stats.DeletedRunIDs = append(stats.DeletedRunIDs, rec.RunID)
			}
			continue
		}

		if rec.Status == StatusCompleted && old {
			if err := os.Remove(path); err == nil {
				stats.Deleted++
				stats.DeletedRunIDs = append(stats.DeletedRunIDs, rec.RunID)
				continue
			}
		}
		stats.Kept++
	}
	return stats, nil
}

// Archive relocates a record to the archive subdirectory, preserving it for
// audit while removing it from active listings. Returns the archived path.
func (s *Store) Archive(project, runID string) (string, error) {
	src := s.path(project, runID)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Project: project, RunID: runID}
		}
		return "", fmt.Errorf("progress: archive: %w", err)
	}
	archiveDir := filepath.Join(s.dir(project), "archive")
	if err := os.MkdirAll(archiveDir, 0o700); err != nil {
		return "", fmt.Errorf("progress: archive dir: %w", err)
	}
	dst := filepath.Join(archiveDir, sanitizeKey(runID)+".json")
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("progress: archive move: %w", err)
	}
	return dst, nil
}
