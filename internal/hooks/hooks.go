// Package hooks executes declared pre/post lifecycle actions around an
// agent invocation. Hook configuration is data: unknown action ids are
// logged and skipped so that old binaries tolerate new configs.
package hooks

import (
	"fmt"
	"log/slog"
)

// Phase identifies when a hook runs.
type Phase string

const (
	PhasePreTask  Phase = "pre_task"
	PhasePostTask Phase = "post_task"
)

// Action is a known hook action. Unknown ids decode to ActionUnknown and
// are no-opped.
type Action int

const (
	ActionUnknown Action = iota
	ActionValidateConfig
	ActionCheckDeps
	ActionClearCache
	ActionLogStart
	ActionLogFinish
	ActionRunVerifier
)

var actionIDs = map[string]Action{
	"validate_config": ActionValidateConfig,
	"check_deps":      ActionCheckDeps,
	"clear_cache":     ActionClearCache,
	"log_start":       ActionLogStart,
	"log_finish":      ActionLogFinish,
	"run_verifier":    ActionRunVerifier,
}

// ParseAction maps a config action id to an Action.
func ParseAction(id string) Action {
	if a, ok := actionIDs[id]; ok {
		return a
	}
	return ActionUnknown
}

// AbortError is raised when a pre-task hook fails. It prevents the
// streaming call entirely; no side effects have occurred when it surfaces.
type AbortError struct {
	Action string
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("pre_task hook %s failed: %s", e.Action, e.Reason)
}

// TaskContext carries the information hooks may inspect.
type TaskContext struct {
	Agent         string
	Task          string
	RunID         string
	FileChanges   bool
	RequiredSet   map[string]string // agent config fields for validate_config
	SpawnFollowup func(agent, task string) error
}

// Runner executes hooks for one invocation.
type Runner struct {
	log *slog.Logger
}

// NewRunner creates a Runner. A nil logger uses the default.
func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

// RunPre executes pre-task hooks synchronously. The first failing hook
// aborts the invocation with *AbortError; no streaming call is made and no
// progress record has been written when this returns an error.
func (r *Runner) RunPre(actions []string, tc TaskContext) error {
	for _, id := range actions {
		switch ParseAction(id) {
		case ActionValidateConfig:
			var missing []string
			for _, field := range []string{"name", "type", "prompt"} {
				if tc.RequiredSet[field] == "" {
					missing = append(missing, field)
				}
			}
			if len(missing) > 0 {
				return &AbortError{Action: id, Reason: fmt.Sprintf("missing required fields: %v", missing)}
			}
			r.log.Debug("pre_task hook passed", "action", id, "agent", tc.Agent)
		case ActionCheckDeps, ActionClearCache:
			r.log.Debug("pre_task hook is a placeholder", "action", id)
		case ActionLogStart:
			r.log.Info("Agent starting task", "agent", tc.Agent, "task", truncate(tc.Task, 100))
		case ActionRunVerifier, ActionLogFinish:
			r.log.Warn("Hook action not valid in pre_task phase", "action", id)
		default:
			r.log.Warn("Unknown pre_task hook action", "action", id)
		}
	}
	return nil
}

// RunPost executes post-task hooks. They run only after a successful
// invocation and are fire-and-forget: failures are logged and never
// propagated to the caller's result.
func (r *Runner) RunPost(actions []string, tc TaskContext) {
	for _, id := range actions {
		switch ParseAction(id) {
		case ActionRunVerifier:
			if !tc.FileChanges {
				r.log.Debug("Skipping verifier hook: no file changes detected")
				continue
			}
			if tc.SpawnFollowup == nil {
				r.log.Warn("run_verifier hook has no spawn function configured")
				continue
			}
			r.log.Info("Running post_task hook", "action", id)
			verifierTask := fmt.Sprintf("Verify the changes made for task: %s", tc.Task)
			if err := tc.SpawnFollowup("verifier", verifierTask); err != nil {
				r.log.Warn("Post-task hook failed", "action", id, "error", err)
			}
		case ActionLogFinish:
			r.log.Info("Agent finished task", "agent", tc.Agent, "run_id", tc.RunID)
		case ActionValidateConfig, ActionCheckDeps, ActionClearCache, ActionLogStart:
			r.log.Warn("Hook action not valid in post_task phase", "action", id)
		default:
			r.log.Warn("Unknown post_task hook action", "action", id)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
