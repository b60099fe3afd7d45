package sweep

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/TaskPilot/TaskPilot/internal/config"
	"github.com/TaskPilot/TaskPilot/internal/progress"
)

func TestSweepDeletesOldCompletedAcrossProjects(t *testing.T) {
	root := t.TempDir()
	store := progress.NewStore(root)

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	write := func(project, runID string, status progress.Status, hb time.Time) {
		t.Helper()
		if err := store.Write(project, &progress.Record{
			RunID: runID, Agent: "web-researcher", Project: project,
			StartedAt: hb, Status: status, LastHeartbeat: hb,
		}); err != nil {
			t.Fatal(err)
		}
	}
	write("alpha", "a_old_done", progress.StatusCompleted, old)
	write("alpha", "a_old_failed", progress.StatusFailed, old)
	write("alpha", "a_running", progress.StatusRunning, old)
	write("beta", "b_old_done", progress.StatusCompleted, old)
	write("beta", "b_fresh_done", progress.StatusCompleted, fresh)

	sw := New(config.SweepConfig{
		Interval:   time.Hour,
		MaxAge:     24 * time.Hour,
		KeepFailed: true,
		LockPath:   filepath.Join(root, "sweep.lock"),
	}, store, nil)

	res, err := sw.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if res.Projects != 2 {
		t.Errorf("projects swept: %d", res.Projects)
	}
	if res.Deleted != 2 {
		t.Errorf("deleted: %+v", res)
	}
	if res.KeptFailed != 1 {
		t.Errorf("kept failed: %+v", res)
	}

	// Running records survive regardless of age.
	if _, err := store.Read("alpha", "a_running"); err != nil {
		t.Errorf("running record was deleted: %v", err)
	}
	if _, err := store.Read("beta", "b_fresh_done"); err != nil {
		t.Errorf("fresh record was deleted: %v", err)
	}
}

func TestFileLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.lock")

	first := NewFileLock(path)
	ok, err := first.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first lock should acquire")
	}
	defer first.Unlock()

	// A second handle on the same path contends, even within one process.
	second := NewFileLock(path)
	ok, err = second.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		second.Unlock()
		t.Error("second lock should be refused while the first is held")
	}

	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	ok, err = second.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("lock should be acquirable after release")
	}
	second.Unlock()
}
