package agent

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/TaskPilot/TaskPilot/internal/progress"
)

// SpawnDetached launches an invocation as an independent background process
// and returns immediately. It is a separate entry point from Invoke: the
// caller gets back a Result with Background set and the run id of the child,
// never the child's output. The child re-enters through the CLI and runs the
// full Invoke state machine itself.
func (o *Orchestrator) SpawnDetached(ic InvocationContext, req Request) (*Result, error) {
	if ic.Depth >= o.cfg.Invoke.MaxDepth {
		return nil, &DepthExceededError{Depth: ic.Depth, Max: o.cfg.Invoke.MaxDepth}
	}
	warning, err := checkTask(req.Task, req.Agent)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		o.log.Warn("Possible misrouted task", "detail", warning)
	}
	if _, ok := o.cfg.Agents[req.Agent]; !ok {
		return nil, &UnknownAgentError{Agent: req.Agent}
	}

	start := o.now()
	runID := req.RunID
	if runID == "" {
		runID = NewRunID(start)
	}
	project := req.Project
	if project == "" {
		project = extractProject(req.Task)
	}
	if project == "" {
		project = o.cfg.Invoke.DefaultProject
	}

	// Pending record first, so the run is observable before the child
	// process has started.
	if err := o.store.Write(project, &progress.Record{
		RunID:         runID,
		Agent:         req.Agent,
		Project:       project,
		StartedAt:     start,
		Status:        progress.StatusPending,
		LastHeartbeat: start,
		Phase:         "Starting background process",
	}); err != nil {
		return nil, fmt.Errorf("agent: pending progress write: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("agent: resolve executable: %w", err)
	}

	child := ic.Child()
	child.RunID = runID
	cmd := exec.Command(self, "invoke", req.Agent, req.Task,
		"--run-id", runID, "--project", project)
	cmd.Env = append(os.Environ(), child.Env()...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachSysProcAttr()
	if err := cmd.Start(); err != nil {
		if _, merr := o.store.MarkFailed(project, runID, "failed to start background process: "+err.Error()); merr != nil {
			o.log.Warn("Terminal progress write failed", "run_id", runID, "error", merr)
		}
		return nil, fmt.Errorf("agent: start detached process: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		o.log.Warn("Process release failed", "run_id", runID, "error", err)
	}

	o.log.Info("Spawned background agent",
		"agent", req.Agent, "run_id", runID, "project", project, "depth", child.Depth)

	return &Result{
		Agent:      req.Agent,
		Success:    true,
		Output:     fmt.Sprintf("Background agent started, run_id=%s", runID),
		RunID:      runID,
		Project:    project,
		Depth:      ic.Depth,
		Background: true,
	}, nil
}
