package agent

import "fmt"

// DepthExceededError signals a configuration or logic bug in the calling
// chain: the recursion ceiling was reached before any side effect occurred.
// It is never retried.
type DepthExceededError struct {
	Depth int
	Max   int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("max agent depth (%d) exceeded at depth %d - cannot spawn more agents", e.Max, e.Depth)
}

// StreamingError wraps a non-retryable failure from the external runtime.
// Rate-limit failures never surface as StreamingError; they are absorbed by
// the retry loop.
type StreamingError struct {
	Agent string
	Err   error
}

func (e *StreamingError) Error() string {
	return fmt.Sprintf("agent %s streaming failed: %v", e.Agent, e.Err)
}

func (e *StreamingError) Unwrap() error { return e.Err }

// BlockedTaskError is returned by the pre-invocation guard when the task
// matches a dangerous-command pattern.
type BlockedTaskError struct {
	Pattern string
}

func (e *BlockedTaskError) Error() string {
	return fmt.Sprintf("task contains dangerous pattern %q; invocation blocked", e.Pattern)
}

// UnknownAgentError is returned when no agent definition exists.
type UnknownAgentError struct {
	Agent string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("agent not found: %s", e.Agent)
}
