package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// logLine is the wire shape of one event-log record. Every field is
// optional; anything that fails to decode is skipped.
type logLine struct {
	Type          string          `json:"type"`
	UUID          string          `json:"uuid"`
	Timestamp     string          `json:"timestamp"`
	Message       json.RawMessage `json:"message"`
	ToolUseResult json.RawMessage `json:"toolUseResult"`
	Todos         []Todo          `json:"todos"`
}

type logMessage struct {
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Thinking  string         `json:"thinking"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool           `json:"is_error"`
}

// Analyzer loads and classifies sessions from a logs root directory. Now is
// the clock used for status classification; tests may pin it.
type Analyzer struct {
	Root       string
	Classifier *Classifier
	Now        func() time.Time
}

// NewAnalyzer creates an Analyzer over the given sessions root.
func NewAnalyzer(root string) *Analyzer {
	return &Analyzer{Root: root, Classifier: NewClassifier(), Now: time.Now}
}

// encodeProjectPath maps a project path to its log directory name.
func encodeProjectPath(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}

// ListSessions returns session ids recorded for a project. Subagent logs
// (agent-*.jsonl) are linked from main sessions and skipped here.
func (a *Analyzer) ListSessions(projectPath string) ([]string, error) {
	dir := filepath.Join(a.Root, encodeProjectPath(projectPath))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, "agent-") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".jsonl"))
	}
	return out, nil
}

// Load parses one session log. Returns nil with no error if the log file
// does not exist.
func (a *Analyzer) Load(projectPath, sessionID string) (*Session, error) {
	path := filepath.Join(a.Root, encodeProjectPath(projectPath), sessionID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: open log: %w", err)
	}
	defer f.Close()

	s := a.Parse(f)
	s.SessionID = sessionID
	s.ProjectPath = projectPath
	return s, nil
}

// Parse walks the ordered event log once and reconstructs the session:
// the first user message becomes the initial prompt, tool calls are paired
// with their results by tool-use id, the most recent todo snapshot wins,
// and only fatal tool errors are tracked. Lines that cannot be parsed are
// skipped. Records with no parseable timestamp are excluded from the
// activity-timestamp set entirely so they never count as recent activity.
func (a *Analyzer) Parse(r io.Reader) *Session {
	s := &Session{}
	// Tool-use ids map to indexes into s.ToolCalls; indexes survive slice
	// growth where pointers would not.
	callsByID := map[string]int{}
	var timestamps []time.Time

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec logLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}

		ts := parseTimestamp(rec.Timestamp)
		if !ts.IsZero() {
			timestamps = append(timestamps, ts)
		}

		switch rec.Type {
		case "user":
			a.parseUser(s, &rec, ts, callsByID)
		case "assistant":
			a.parseAssistant(s, &rec, ts, callsByID)
		}

		if len(rec.Todos) > 0 {
			s.Todos = rec.Todos
		}
	}

	if len(timestamps) > 0 {
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })
		s.StartedAt = timestamps[0]
		s.LastActivity = timestamps[len(timestamps)-1]
	}

	s.Status = a.Classifier.Classify(s, a.Now())
	return s
}

func (a *Analyzer) parseUser(s *Session, rec *logLine, ts time.Time, callsByID map[string]int) {
	var msg logMessage
	if rec.Message != nil {
		_ = json.Unmarshal(rec.Message, &msg)
	}

	if len(rec.ToolUseResult) > 0 {
		// Tool result record: link back to the originating call.
		for _, block := range decodeBlocks(msg.Content) {
			if block.Type != "tool_result" {
				continue
			}
			result := blockText(block.Content)
			i, ok := callsByID[block.ToolUseID]
			if !ok {
				continue
			}
			tc := &s.ToolCalls[i]
			tc.Result = result
			tc.IsError = block.IsError
			if block.IsError && a.Classifier.IsFatal(tc.Name, result) {
				s.LastError = truncateRunes(result, 500)
			}
		}
		return
	}

	text := extractText(msg.Content)
	if text == "" {
		return
	}
	if s.InitialPrompt == "" {
		s.InitialPrompt = text
	}
	s.Messages = append(s.Messages, Message{
		Role:      "user",
		Content:   text,
		UUID:      rec.UUID,
		Timestamp: ts,
	})
}

func (a *Analyzer) parseAssistant(s *Session, rec *logLine, ts time.Time, callsByID map[string]int) {
	var msg logMessage
	if rec.Message != nil {
		_ = json.Unmarshal(rec.Message, &msg)
	}

	var msgCalls []ToolCall
	var thinking string
	for _, block := range decodeBlocks(msg.Content) {
		switch block.Type {
		case "tool_use":
			tc := ToolCall{
				Name:      block.Name,
				Input:     block.Input,
				Timestamp: ts,
			}
			if tc.Name == "" {
				tc.Name = "unknown"
			}
			callsByID[block.ID] = len(s.ToolCalls) + len(msgCalls)
			msgCalls = append(msgCalls, tc)
			if tc.Name == "spawn_agent" {
				if id, ok := block.Input["agent_id"].(string); ok && id != "" {
					s.AgentSessions = append(s.AgentSessions, id)
				}
			}
		case "thinking":
			thinking = block.Thinking
		}
	}
	s.ToolCalls = append(s.ToolCalls, msgCalls...)

	text := extractText(msg.Content)
	if text == "" && len(msgCalls) == 0 {
		return
	}
	s.Messages = append(s.Messages, Message{
		Role:      "assistant",
		Content:   text,
		UUID:      rec.UUID,
		Timestamp: ts,
		ToolCalls: msgCalls,
		Thinking:  thinking,
	})
}

// Recent returns sessions for a project sorted by last activity, newest
// first, optionally filtered by status.
func (a *Analyzer) Recent(projectPath string, limit int, statusFilter []Status) ([]*Session, error) {
	ids, err := a.ListSessions(projectPath)
	if err != nil {
		return nil, err
	}
	var sessions []*Session
	for _, id := range ids {
		s, err := a.Load(projectPath, id)
		if err != nil || s == nil {
			continue
		}
		if len(statusFilter) > 0 && !containsStatus(statusFilter, s.Status) {
			continue
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// FindStuck returns sessions that appear stuck, errored, or abandoned.
func (a *Analyzer) FindStuck(projectPath string) ([]*Session, error) {
	return a.Recent(projectPath, 50, []Status{StatusStuck, StatusError, StatusAbandoned})
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseTimestamp returns the zero time for empty or unparseable values
// rather than defaulting to now.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func decodeBlocks(raw json.RawMessage) []contentBlock {
	if len(raw) == 0 {
		return nil
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

// extractText handles both plain-string content and block-list content.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var texts []string
	for _, block := range decodeBlocks(raw) {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// blockText renders a tool_result content field, which may be a string or
// a nested block list.
func blockText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return extractText(raw)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
