// Package session parses append-only agent event logs into reconstructed
// conversations and classifies each one into a lifecycle status. The log is
// owned and written exclusively by the external agent runtime; this package
// only reads it and tolerates partial or concurrent appends.
package session

import (
	"time"
)

// Status is the derived lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusStuck      Status = "stuck"
	StatusError      Status = "error"
	StatusAbandoned  Status = "abandoned"
	StatusEmpty      Status = "empty"
)

// ToolCall is one tool invocation reconstructed from the log. Never mutated
// after the owning Session is built.
type ToolCall struct {
	Name      string
	Input     map[string]any
	Result    string
	IsError   bool
	Timestamp time.Time // zero if the log line had no parseable timestamp
}

// Message is one conversation message.
type Message struct {
	Role      string // "user" or "assistant"
	Content   string
	UUID      string
	Timestamp time.Time
	ToolCalls []ToolCall
	Thinking  string
}

// Todo is one entry of the most recent todo-list snapshot.
type Todo struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending | in_progress | completed
}

// Session is the reconstructed history for one run. Built fresh on every
// parse; never persisted separately.
type Session struct {
	SessionID     string
	ProjectPath   string
	StartedAt     time.Time
	LastActivity  time.Time
	Messages      []Message
	ToolCalls     []ToolCall
	Todos         []Todo
	Status        Status
	InitialPrompt string
	LastError     string // most recent fatal tool error, empty if none
	AgentSessions []string
}

// DurationMinutes is the span from start to last activity.
func (s *Session) DurationMinutes() float64 {
	return s.LastActivity.Sub(s.StartedAt).Minutes()
}

// FilesRead lists unique file paths read during the session.
func (s *Session) FilesRead() []string {
	return s.uniqueToolFiles("read_file")
}

// FilesWritten lists unique file paths written or edited during the session.
func (s *Session) FilesWritten() []string {
	seen := map[string]bool{}
	var out []string
	for _, tc := range s.ToolCalls {
		if tc.Name != "write_file" && tc.Name != "edit_file" {
			continue
		}
		if p, ok := tc.Input["file_path"].(string); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Commands lists shell commands run during the session, in order.
func (s *Session) Commands() []string {
	var out []string
	for _, tc := range s.ToolCalls {
		if tc.Name == "exec" {
			if c, ok := tc.Input["command"].(string); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// PendingTodos returns todos that are not completed.
func (s *Session) PendingTodos() []Todo {
	var out []Todo
	for _, t := range s.Todos {
		if t.Status != "completed" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Session) uniqueToolFiles(tool string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tc := range s.ToolCalls {
		if tc.Name != tool {
			continue
		}
		if p, ok := tc.Input["file_path"].(string); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
