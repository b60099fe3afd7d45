// Package agent implements the invocation orchestrator: the state machine
// that validates a delegated task, drives the external runtime's event
// stream with rate-limit retry, maintains the run's progress record, and
// executes lifecycle hooks.
package agent

import (
	"fmt"
	"os"
	"strconv"
)

// Env vars that carry ambient state across the process boundary for
// detached children. Inside a process the same values travel explicitly in
// an InvocationContext.
const (
	EnvDepth = "TASKPILOT_AGENT_DEPTH"
	EnvRunID = "TASKPILOT_RUN_ID"
)

// InvocationContext carries the ambient execution-scoped state of one
// invocation: the recursion depth and the current run id. It is passed by
// value down the call chain; each child sees the parent's depth plus one.
type InvocationContext struct {
	Depth int
	RunID string
}

// Child returns the context a nested invocation runs under.
func (ic InvocationContext) Child() InvocationContext {
	return InvocationContext{Depth: ic.Depth + 1, RunID: ic.RunID}
}

// ContextFromEnv reconstructs the invocation context at process start.
// Absent or malformed values mean depth zero.
func ContextFromEnv() InvocationContext {
	depth := 0
	if v := os.Getenv(EnvDepth); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			depth = n
		}
	}
	return InvocationContext{Depth: depth, RunID: os.Getenv(EnvRunID)}
}

// Env renders the context as KEY=VALUE pairs for a child process.
func (ic InvocationContext) Env() []string {
	return []string{
		fmt.Sprintf("%s=%d", EnvDepth, ic.Depth),
		fmt.Sprintf("%s=%s", EnvRunID, ic.RunID),
	}
}
