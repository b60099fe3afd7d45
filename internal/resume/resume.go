// Package resume turns stuck or interrupted sessions into continuation
// prompts: a full markdown briefing with the original task, work done,
// pending todos and last error, or a minimal one-paragraph variant.
package resume

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TaskPilot/TaskPilot/internal/session"
)

const (
	maxTaskLength  = 2000
	maxErrorLength = 1000
	maxAlertItems  = 5
)

// Coordinator builds resume material from a session analyzer.
type Coordinator struct {
	Analyzer *session.Analyzer

	now func() time.Time
}

// NewCoordinator wraps an analyzer.
func NewCoordinator(a *session.Analyzer) *Coordinator {
	return &Coordinator{Analyzer: a, now: time.Now}
}

// StuckSummary is the lightweight view used for alerts and listings.
type StuckSummary struct {
	SessionID     string    `json:"session_id"`
	ShortID       string    `json:"short_id"`
	Status        string    `json:"status"`
	Task          string    `json:"task"`
	PendingTodos  int       `json:"pending_todos"`
	LastActivity  time.Time `json:"last_activity"`
	HasError      bool      `json:"has_error"`
	FilesModified int       `json:"files_modified"`
}

// CheckForStuckSessions finds sessions that look stuck, errored, or
// abandoned and were active within maxAge. At most five are returned,
// newest first.
func (c *Coordinator) CheckForStuckSessions(projectPath string, maxAge time.Duration) ([]StuckSummary, error) {
	stuck, err := c.Analyzer.FindStuck(projectPath)
	if err != nil {
		return nil, err
	}
	cutoff := c.now().Add(-maxAge)

	var out []StuckSummary
	for _, s := range stuck {
		if !s.LastActivity.After(cutoff) {
			continue
		}
		out = append(out, StuckSummary{
			SessionID:     s.SessionID,
			ShortID:       shortID(s.SessionID),
			Status:        string(s.Status),
			Task:          truncateRunes(s.InitialPrompt, 100),
			PendingTodos:  len(s.PendingTodos()),
			LastActivity:  s.LastActivity,
			HasError:      s.LastError != "",
			FilesModified: len(s.FilesWritten()),
		})
		if len(out) == maxAlertItems {
			break
		}
	}
	return out, nil
}

// FormatAlert renders stuck sessions as a notice for the user. Empty input
// yields an empty string.
func FormatAlert(sessions []StuckSummary) string {
	if len(sessions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Stuck Sessions Detected\n\n")
	b.WriteString("The following previous sessions appear to be stuck or errored:\n\n")
	for _, s := range sessions {
		marker := "?"
		if s.HasError {
			marker = "!"
		}
		task := strings.ReplaceAll(truncateRunes(s.Task, 60), "\n", " ")
		fmt.Fprintf(&b, "  [%s] `%s` - %s...\n", marker, s.ShortID, task)
		if s.PendingTodos > 0 {
			fmt.Fprintf(&b, "      %d pending todos\n", s.PendingTodos)
		}
	}
	b.WriteString("\nTo resume a session:\n```\ntaskpilot sessions resume <session-id>\n```\n")
	return b.String()
}

// PromptOptions tune GeneratePrompt output.
type PromptOptions struct {
	// IncludeMessages appends the last ten messages of the conversation.
	IncludeMessages bool
	// MaxMessageLength bounds each included message. Zero means 500.
	MaxMessageLength int
}

// GeneratePrompt builds the full resume briefing for a session.
func (c *Coordinator) GeneratePrompt(s *session.Session, opts PromptOptions) string {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 500
	}
	var b strings.Builder

	b.WriteString("# RESUME SESSION\n\n")
	b.WriteString("This is a CONTINUATION of a previous agent session that was interrupted.\n")
	b.WriteString("Please review the context below and continue where it left off.\n\n")

	b.WriteString("## Session Info\n")
	fmt.Fprintf(&b, "- **Session ID**: `%s`\n", s.SessionID)
	fmt.Fprintf(&b, "- **Project**: `%s`\n", s.ProjectPath)
	fmt.Fprintf(&b, "- **Started**: %s\n", s.StartedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- **Last Activity**: %s\n", s.LastActivity.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- **Status**: %s\n", s.Status)
	fmt.Fprintf(&b, "- **Duration**: %.1f minutes\n\n", s.DurationMinutes())

	b.WriteString("## Original Task\n```\n")
	b.WriteString(truncateMiddle(s.InitialPrompt, maxTaskLength))
	b.WriteString("\n```\n\n")

	b.WriteString("## Work Completed\n\n### Tool Usage Summary\n")
	b.WriteString(summarizeToolCalls(s.ToolCalls))
	b.WriteString("\n\n")

	written := s.FilesWritten()
	if len(written) > 0 {
		b.WriteString("### Files Created/Modified\n")
		for i, f := range written {
			if i == 20 {
				fmt.Fprintf(&b, "  - ... and %d more\n", len(written)-20)
				break
			}
			fmt.Fprintf(&b, "  - `%s`\n", f)
		}
		b.WriteString("\n")
	}

	commands := s.Commands()
	if len(commands) > 5 {
		commands = commands[len(commands)-5:]
	}
	if len(commands) > 0 {
		b.WriteString("### Recent Commands\n")
		for _, cmd := range commands {
			fmt.Fprintf(&b, "  - `%s`\n", truncateWithEllipsis(cmd, 80))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Current State\n\n### Todo List\n")
	b.WriteString(formatTodos(s.Todos))
	b.WriteString("\n\n")

	if s.LastError != "" {
		b.WriteString("## Last Error\n```\n")
		b.WriteString(truncateMiddle(s.LastError, maxErrorLength))
		b.WriteString("\n```\n\n")
	}

	if opts.IncludeMessages {
		b.WriteString("## Message History\n\n")
		msgs := s.Messages
		if len(msgs) > 10 {
			msgs = msgs[len(msgs)-10:]
		}
		for _, m := range msgs {
			role := "USER"
			if m.Role == "assistant" {
				role = "ASSISTANT"
			}
			fmt.Fprintf(&b, "### [%s] (%s)\n", role, m.Timestamp.Format("15:04"))
			b.WriteString(truncateMiddle(m.Content, opts.MaxMessageLength))
			b.WriteString("\n")
			if len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				fmt.Fprintf(&b, "  *Tools used: %s*\n", strings.Join(names, ", "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Instructions\n\nPlease continue this session:\n\n")
	if len(s.PendingTodos()) > 0 {
		b.WriteString("1. **Complete pending todos** - The todo list above shows remaining work\n")
	} else {
		b.WriteString("1. **Review the original task** - Determine if it was fully completed\n")
	}
	if s.LastError != "" {
		b.WriteString("2. **Investigate the error** - The session stopped due to an error\n")
	} else {
		b.WriteString("2. **Continue from where work stopped** - Resume the last action\n")
	}
	b.WriteString("3. **Update the todo list** - Mark completed items and add new ones as needed\n")
	b.WriteString("4. **Verify completion** - Ensure the original task is fully addressed\n\n")

	if len(written) > 0 {
		b.WriteString("### Key Files to Review\nThese files were modified in the previous session and may need review:\n")
		for i, f := range written {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "  - `%s`\n", f)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// GenerateMinimal builds a one-paragraph resume prompt.
func (c *Coordinator) GenerateMinimal(s *session.Session) string {
	pending := s.PendingTodos()
	pendingStr := "none"
	if len(pending) > 0 {
		var items []string
		for i, t := range pending {
			if i == 3 {
				break
			}
			items = append(items, t.Content)
		}
		pendingStr = strings.Join(items, ", ")
	}

	filesStr := "none"
	if written := s.FilesWritten(); len(written) > 0 {
		var names []string
		for i, f := range written {
			if i == 3 {
				break
			}
			names = append(names, filepath.Base(f))
		}
		filesStr = strings.Join(names, ", ")
	}

	errorStr := ""
	if s.LastError != "" {
		errorStr = " Last error: " + truncateRunes(s.LastError, 100) + "..."
	}

	return fmt.Sprintf(`RESUME: Continue previous session (ID: %s).

Original task: %s

Work done: %d tool calls, modified files: %s.

Pending todos: %s.%s

Please review and continue where the previous session left off. Check the todo list and complete any pending items.`,
		shortID(s.SessionID),
		truncateWithEllipsis(s.InitialPrompt, 200),
		len(s.ToolCalls), filesStr, pendingStr, errorStr)
}

// Find loads a session by id or unique id prefix.
func (c *Coordinator) Find(projectPath, idOrPrefix string) (*session.Session, error) {
	if s, err := c.Analyzer.Load(projectPath, idOrPrefix); err != nil {
		return nil, err
	} else if s != nil {
		return s, nil
	}

	ids, err := c.Analyzer.ListSessions(projectPath)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, idOrPrefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("resume: session not found: %s", idOrPrefix)
	case 1:
		return c.Analyzer.Load(projectPath, matches[0])
	default:
		return nil, fmt.Errorf("resume: ambiguous session prefix %s (%d matches)", idOrPrefix, len(matches))
	}
}

// summarizeToolCalls groups calls by tool into one line each.
func summarizeToolCalls(calls []session.ToolCall) string {
	if len(calls) == 0 {
		return "  (none)"
	}
	byTool := map[string][]session.ToolCall{}
	for _, tc := range calls {
		byTool[tc.Name] = append(byTool[tc.Name], tc)
	}
	names := make([]string, 0, len(byTool))
	for name := range byTool {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		group := byTool[name]
		switch name {
		case "read_file":
			lines = append(lines, fmt.Sprintf("  - read_file: %d files (%s)", len(group), fileNames(group, 5)))
		case "write_file":
			lines = append(lines, fmt.Sprintf("  - write_file: %s", fileNames(group, len(group))))
		case "edit_file":
			lines = append(lines, fmt.Sprintf("  - edit_file: %d edits to %s", len(group), fileNames(group, 5)))
		case "exec":
			lines = append(lines, fmt.Sprintf("  - exec: %d commands", len(group)))
			for i, tc := range group {
				if i == 5 {
					break
				}
				if cmd, ok := tc.Input["command"].(string); ok {
					lines = append(lines, "      "+truncateRunes(cmd, 50)+"...")
				}
			}
		case "spawn_agent":
			var descs []string
			for i, tc := range group {
				if i == 3 {
					break
				}
				if d, ok := tc.Input["description"].(string); ok {
					descs = append(descs, d)
				}
			}
			lines = append(lines, fmt.Sprintf("  - spawn_agent (subagents): %s", strings.Join(descs, ", ")))
		case "grep", "glob":
			lines = append(lines, fmt.Sprintf("  - %s: %d searches", name, len(group)))
		default:
			lines = append(lines, fmt.Sprintf("  - %s: %d calls", name, len(group)))
		}
	}
	if len(lines) > 20 {
		lines = lines[:20]
	}
	return strings.Join(lines, "\n")
}

func fileNames(calls []session.ToolCall, limit int) string {
	seen := map[string]bool{}
	var names []string
	for _, tc := range calls {
		p, ok := tc.Input["file_path"].(string)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		names = append(names, filepath.Base(p))
		if len(names) == limit {
			break
		}
	}
	if len(names) == 0 {
		return "?"
	}
	return strings.Join(names, ", ")
}

func formatTodos(todos []session.Todo) string {
	if len(todos) == 0 {
		return "  (none)"
	}
	var lines []string
	for _, t := range todos {
		marker := ">"
		switch t.Status {
		case "completed":
			marker = "x"
		case "pending":
			marker = " "
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s", marker, t.Content))
	}
	return strings.Join(lines, "\n")
}

// truncateMiddle keeps the head and tail of a long text.
func truncateMiddle(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	half := max/2 - 20
	return string(r[:half]) + "\n\n... [truncated] ...\n\n" + string(r[len(r)-half:])
}

func truncateWithEllipsis(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
