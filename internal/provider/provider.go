// Package provider defines the interface to the external agent runtime.
// The runtime owns model selection, prompt construction, and tool
// execution; this package only sees the resulting event stream.
package provider

import (
	"context"
)

// EventType classifies a streamed runtime event.
type EventType string

const (
	EventText       EventType = "text"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventThinking   EventType = "thinking"
)

// Event is one unit of streamed runtime output.
type Event struct {
	Type      EventType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	ToolID    string         `json:"tool_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	Result    string         `json:"result,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// TaskRequest describes one delegated task for the runtime.
type TaskRequest struct {
	Agent        string
	Task         string
	Model        string
	RunID        string
	AllowedTools []string
	Env          []string // extra KEY=VALUE pairs for the runtime process
}

// Runtime streams events for a delegated task. Stream blocks until the task
// finishes or fails; onEvent is called for every event in stream order from
// a single goroutine. A returned error means the attempt failed as a whole;
// the orchestrator decides whether it is retryable.
type Runtime interface {
	Stream(ctx context.Context, req *TaskRequest, onEvent func(Event)) error
}
