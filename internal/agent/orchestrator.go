package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TaskPilot/TaskPilot/internal/config"
	"github.com/TaskPilot/TaskPilot/internal/hooks"
	"github.com/TaskPilot/TaskPilot/internal/progress"
	"github.com/TaskPilot/TaskPilot/internal/provider"
	"github.com/TaskPilot/TaskPilot/internal/retry"
)

// fileModifyingTools are recorded for artifact reporting and gate the
// verifier post-hook.
var fileModifyingTools = map[string]bool{
	"write_file": true,
	"edit_file":  true,
}

// Request describes one invocation.
type Request struct {
	Agent   string
	Task    string
	RunID   string // generated when empty
	Project string // derived from the task when empty
}

// ToolUse is one tool invocation observed in the event stream.
type ToolUse struct {
	Name  string         `json:"tool"`
	Input map[string]any `json:"input,omitempty"`
}

// Result is the terminal outcome of an invocation.
type Result struct {
	Agent         string    `json:"agent"`
	Success       bool      `json:"success"`
	Output        string    `json:"output"`
	ToolUses      []ToolUse `json:"tool_uses"`
	DurationMS    int64     `json:"duration_ms"`
	RunID         string    `json:"run_id"`
	Project       string    `json:"project,omitempty"`
	Depth         int       `json:"depth"`
	RetryAttempts int       `json:"retry_attempts"`
	Error         string    `json:"error,omitempty"`
	Background    bool      `json:"background,omitempty"`
}

// Recorder receives best-effort invocation history rows. A nil Recorder is
// skipped.
type Recorder interface {
	RecordStart(runID, agent, project string, startedAt time.Time) error
	RecordFinish(runID string, success bool, durationMS int64, retries int, errMsg, summary string) error
}

// Orchestrator drives invocations end to end.
type Orchestrator struct {
	cfg     config.Config
	store   *progress.Store
	runtime provider.Runtime
	hooks   *hooks.Runner
	policy  *retry.Policy
	ledger  Recorder
	log     *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New creates an Orchestrator. ledger may be nil.
func New(cfg config.Config, store *progress.Store, runtime provider.Runtime, ledger Recorder) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		runtime: runtime,
		hooks:   hooks.NewRunner(nil),
		policy:  retry.NewPolicy(),
		ledger:  ledger,
		log:     slog.Default(),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// NewRunID generates a fresh RunIdentifier: timestamp plus random suffix,
// never reused.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("run_%s_%s", now.Format("20060102_150405"), suffix)
}

// Invoke executes one foreground invocation under the given context.
//
// State machine: Init -> DepthCheck -> PreHooks -> Streaming(with retry) ->
// PostHooks -> Terminal. Failures before the streaming call (depth check,
// task guard, pre-hook abort) return with zero progress writes. Once the
// initial record is written, exactly one terminal write follows, success or
// failure.
func (o *Orchestrator) Invoke(ctx context.Context, ic InvocationContext, req Request) (*Result, error) {
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

	agentCfg, ok := o.cfg.Agents[req.Agent]
	if !ok {
		return nil, &UnknownAgentError{Agent: req.Agent}
	}

	start := o.now()

	// Pre-task hooks run before any progress write; an abort here leaves
	// no side effects at all.
	if err := o.hooks.RunPre(agentCfg.Hooks.PreTask, hooks.TaskContext{
		Agent: req.Agent,
		Task:  req.Task,
		RequiredSet: map[string]string{
			"name":   req.Agent,
			"type":   agentCfg.Type,
			"prompt": agentCfg.Prompt,
		},
	}); err != nil {
		return nil, err
	}

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
	ic.RunID = runID

	if err := o.store.Write(project, &progress.Record{
		RunID:         runID,
		Agent:         req.Agent,
		Project:       project,
		StartedAt:     start,
		Status:        progress.StatusRunning,
		LastHeartbeat: start,
		Phase:         "Initializing agent",
	}); err != nil {
		return nil, fmt.Errorf("agent: initial progress write: %w", err)
	}
	if o.ledger != nil {
		if err := o.ledger.RecordStart(runID, req.Agent, project, start); err != nil {
			o.log.Warn("Ledger start record failed", "run_id", runID, "error", err)
		}
	}

	output, toolUses, attempts, streamErr := o.stream(ctx, ic, req, agentCfg, project, runID)

	end := o.now()
	result := &Result{
		Agent:         req.Agent,
		Success:       streamErr == nil,
		Output:        output,
		ToolUses:      toolUses,
		DurationMS:    end.Sub(start).Milliseconds(),
		RunID:         runID,
		Project:       project,
		Depth:         ic.Depth,
		RetryAttempts: attempts,
	}

	if streamErr != nil {
		result.Error = streamErr.Error()
		if _, err := o.store.MarkFailed(project, runID, result.Error); err != nil {
			o.log.Warn("Terminal progress write failed", "run_id", runID, "error", err)
		}
		o.recordFinish(result)
		return result, streamErr
	}

	summary := buildSummary(output, o.cfg.Invoke.SummaryLimit)
	artifacts := collectArtifacts(toolUses)
	if _, err := o.store.MarkCompleted(project, runID, summary, artifacts); err != nil {
		o.log.Warn("Terminal progress write failed", "run_id", runID, "error", err)
	}
	o.recordFinish(result)

	// Post-task hooks run only on success and are fire-and-forget.
	o.hooks.RunPost(agentCfg.Hooks.PostTask, hooks.TaskContext{
		Agent:       req.Agent,
		Task:        req.Task,
		RunID:       runID,
		FileChanges: hasFileChanges(toolUses),
		SpawnFollowup: func(agent, task string) error {
			_, err := o.Invoke(ctx, ic.Child(), Request{Agent: agent, Task: task, Project: project})
			return err
		},
	})

	return result, nil
}

// stream drives the runtime call, restarting it from scratch on rate-limit
// errors. Capacity errors are retried forever; any other error is terminal.
func (o *Orchestrator) stream(ctx context.Context, ic InvocationContext, req Request, agentCfg config.AgentConfig, project, runID string) (string, []ToolUse, int, error) {
	attempt := 0
	for {
		var sb strings.Builder
		var toolUses []ToolUse
		events := 0

		onEvent := func(ev provider.Event) {
			switch ev.Type {
			case provider.EventText:
				sb.WriteString(ev.Text)
				events++
			case provider.EventToolUse:
				toolUses = append(toolUses, ToolUse{Name: ev.ToolName, Input: ev.ToolInput})
				events++
				// Tool use always refreshes the heartbeat immediately.
				o.heartbeat(project, runID, "Using tool: "+ev.ToolName, events)
				return
			default:
				return
			}
			if events%o.cfg.Invoke.HeartbeatEvery == 0 {
				o.heartbeat(project, runID, "Processing messages", events)
			}
		}

		err := o.runtime.Stream(ctx, &provider.TaskRequest{
			Agent:        req.Agent,
			Task:         req.Task,
			Model:        agentCfg.Model,
			RunID:        runID,
			AllowedTools: agentCfg.Tools,
			Env:          ic.Child().Env(),
		}, onEvent)
		if err == nil {
			return sb.String(), toolUses, attempt, nil
		}
		if ctx.Err() != nil {
			return "", nil, attempt, &StreamingError{Agent: req.Agent, Err: ctx.Err()}
		}
		if !retry.IsRateLimit(err) {
			return "", nil, attempt, &StreamingError{Agent: req.Agent, Err: err}
		}

		attempt++
		hint := retry.ExtractRetryAfter(err)
		backoff := o.policy.Backoff(attempt-1, hint)
		o.log.Warn("Rate limited, retrying",
			"agent", req.Agent, "run_id", runID,
			"attempt", attempt, "backoff", backoff, "hint", hint)
		if serr := o.sleep(ctx, backoff); serr != nil {
			return "", nil, attempt, &StreamingError{Agent: req.Agent, Err: serr}
		}
	}
}

func (o *Orchestrator) heartbeat(project, runID, phase string, events int) {
	if _, err := o.store.Heartbeat(project, runID, phase, events); err != nil {
		o.log.Debug("Heartbeat update failed", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) recordFinish(res *Result) {
	if o.ledger == nil {
		return
	}
	summary := buildSummary(res.Output, o.cfg.Invoke.SummaryLimit)
	if err := o.ledger.RecordFinish(res.RunID, res.Success, res.DurationMS, res.RetryAttempts, res.Error, summary); err != nil {
		o.log.Warn("Ledger finish record failed", "run_id", res.RunID, "error", err)
	}
}

func buildSummary(output string, limit int) string {
	s := strings.TrimSpace(output)
	if s == "" {
		return "Completed successfully"
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}

func collectArtifacts(toolUses []ToolUse) []string {
	var out []string
	for _, tu := range toolUses {
		if !fileModifyingTools[tu.Name] {
			continue
		}
		if p, ok := tu.Input["file_path"].(string); ok && p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasFileChanges(toolUses []ToolUse) bool {
	for _, tu := range toolUses {
		if fileModifyingTools[tu.Name] {
			return true
		}
	}
	return false
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
