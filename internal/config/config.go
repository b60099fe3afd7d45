// Package config provides configuration types and loading for taskpilot.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration struct.
type Config struct {
	Paths   PathsConfig            `json:"paths"`
	Invoke  InvokeConfig           `json:"invoke"`
	Runtime RuntimeConfig          `json:"runtime"`
	Sweep   SweepConfig            `json:"sweep"`
	Agents  map[string]AgentConfig `json:"agents,omitempty"`
}

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	// ProgressRoot is the directory under which per-project progress
	// records are stored.
	ProgressRoot string `json:"progressRoot" envconfig:"PROGRESS_ROOT"`
	// SessionsRoot is the directory holding the externally-owned session
	// event logs, one subdirectory per encoded project path.
	SessionsRoot string `json:"sessionsRoot" envconfig:"SESSIONS_ROOT"`
	// LedgerPath is the sqlite invocation-history database.
	LedgerPath string `json:"ledgerPath" envconfig:"LEDGER_PATH"`
}

// InvokeConfig groups orchestrator settings.
type InvokeConfig struct {
	// MaxDepth bounds nested agent-invoking-agent recursion.
	MaxDepth int `json:"maxDepth" envconfig:"MAX_DEPTH"`
	// HeartbeatEvery refreshes the heartbeat after this many streamed
	// events; tool-use events always refresh immediately.
	HeartbeatEvery int `json:"heartbeatEvery" envconfig:"HEARTBEAT_EVERY"`
	// SummaryLimit truncates the terminal result summary.
	SummaryLimit int `json:"summaryLimit" envconfig:"SUMMARY_LIMIT"`
	// DefaultProject is used when no project can be derived from the task.
	DefaultProject string `json:"defaultProject" envconfig:"DEFAULT_PROJECT"`
}

// RuntimeConfig selects the external agent runtime binary.
type RuntimeConfig struct {
	Command string   `json:"command" envconfig:"RUNTIME_COMMAND"`
	Args    []string `json:"args,omitempty"`
}

// SweepConfig controls the retention sweep loop.
type SweepConfig struct {
	Enabled    bool          `json:"enabled" envconfig:"SWEEP_ENABLED"`
	Interval   time.Duration `json:"interval"`
	MaxAge     time.Duration `json:"maxAge"`
	KeepFailed bool          `json:"keepFailed" envconfig:"SWEEP_KEEP_FAILED"`
	LockPath   string        `json:"lockPath"`
}

// AgentConfig defines one invokable agent. Hook lists are declarative data
// consumed read-only by the hook runner.
type AgentConfig struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Prompt      string      `json:"prompt"`
	Model       string      `json:"model,omitempty"`
	Tools       []string    `json:"tools,omitempty"`
	Hooks       HooksConfig `json:"hooks"`
}

// HooksConfig lists hook action ids by phase.
type HooksConfig struct {
	PreTask  []string `json:"pre_task,omitempty"`
	PostTask []string `json:"post_task,omitempty"`
}

// Default returns the default configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".taskpilot")
	return Config{
		Paths: PathsConfig{
			ProgressRoot: filepath.Join(base, "projects"),
			SessionsRoot: filepath.Join(base, "sessions"),
			LedgerPath:   filepath.Join(base, "ledger.db"),
		},
		Invoke: InvokeConfig{
			MaxDepth:       4,
			HeartbeatEvery: 5,
			SummaryLimit:   200,
			DefaultProject: "default",
		},
		Runtime: RuntimeConfig{
			Command: "taskpilot-runtime",
		},
		Sweep: SweepConfig{
			Enabled:    false,
			Interval:   time.Hour,
			MaxAge:     24 * time.Hour,
			KeepFailed: true,
			LockPath:   filepath.Join(base, "sweep.lock"),
		},
		Agents: map[string]AgentConfig{},
	}
}
