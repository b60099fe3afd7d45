package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"type":"user","uuid":"u1","timestamp":"2026-08-20T10:00:00Z","message":{"content":"Add a cache layer to projects/webshop/ backend"}}
{"type":"assistant","uuid":"a1","timestamp":"2026-08-20T10:00:05Z","message":{"content":[{"type":"thinking","thinking":"start with the storage interface"},{"type":"text","text":"I'll start with the storage interface."},{"type":"tool_use","id":"tu1","name":"write_file","input":{"file_path":"/repo/cache.go"}}]}}
{"type":"user","uuid":"u2","timestamp":"2026-08-20T10:00:10Z","toolUseResult":{"ok":true},"message":{"content":[{"type":"tool_result","tool_use_id":"tu1","content":"written","is_error":false}]}}
{"type":"assistant","uuid":"a2","timestamp":"2026-08-20T10:00:20Z","message":{"content":[{"type":"tool_use","id":"tu2","name":"exec","input":{"command":"go test ./..."}},{"type":"tool_use","id":"tu3","name":"spawn_agent","input":{"agent_id":"agent-42","description":"run the benchmarks"}}]}}
{"type":"user","uuid":"u3","timestamp":"2026-08-20T10:01:00Z","toolUseResult":{"ok":false},"message":{"content":[{"type":"tool_result","tool_use_id":"tu2","content":"permission denied: cannot open test fixtures directory","is_error":true}]}}
this line is not json and must be skipped
{"type":"assistant","uuid":"a3","timestamp":"not-a-timestamp","message":{"content":[{"type":"text","text":"Investigating the failure."}]}}
{"type":"user","uuid":"u4","timestamp":"2026-08-20T10:02:00Z","message":{"content":"keep going"},"todos":[{"content":"write cache","status":"completed"},{"content":"fix permissions","status":"pending"}]}
`

func parseSample(t *testing.T) *Session {
	t.Helper()
	a := NewAnalyzer(t.TempDir())
	a.Now = func() time.Time { return time.Date(2026, 8, 20, 10, 3, 0, 0, time.UTC) }
	return a.Parse(strings.NewReader(sampleLog))
}

func TestParseInitialPromptAndMessages(t *testing.T) {
	s := parseSample(t)
	if !strings.HasPrefix(s.InitialPrompt, "Add a cache layer") {
		t.Errorf("initial prompt: %q", s.InitialPrompt)
	}
	// u1, a1, a2, a3, u4 produce messages; tool-result records do not.
	if len(s.Messages) != 5 {
		t.Fatalf("want 5 messages, got %d", len(s.Messages))
	}
	if s.Messages[1].Thinking == "" {
		t.Error("thinking block not captured")
	}
}

func TestParsePairsToolResultsByID(t *testing.T) {
	s := parseSample(t)
	if len(s.ToolCalls) != 3 {
		t.Fatalf("want 3 tool calls, got %d", len(s.ToolCalls))
	}
	write := s.ToolCalls[0]
	if write.Name != "write_file" || write.Result != "written" || write.IsError {
		t.Errorf("write_file pairing wrong: %+v", write)
	}
	execCall := s.ToolCalls[1]
	if execCall.Name != "exec" || !execCall.IsError {
		t.Errorf("exec pairing wrong: %+v", execCall)
	}
	if !strings.Contains(execCall.Result, "permission denied") {
		t.Errorf("exec result missing: %q", execCall.Result)
	}
}

func TestParseFatalErrorTracked(t *testing.T) {
	s := parseSample(t)
	// "permission denied" is a fatal pattern even for exec.
	if !strings.Contains(s.LastError, "permission denied") {
		t.Errorf("last error not captured: %q", s.LastError)
	}
}

func TestParseDropsUnparseableTimestamps(t *testing.T) {
	s := parseSample(t)
	wantStart := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	wantLast := time.Date(2026, 8, 20, 10, 2, 0, 0, time.UTC)
	if !s.StartedAt.Equal(wantStart) {
		t.Errorf("started_at: %v", s.StartedAt)
	}
	// The record with the broken timestamp must not count as activity.
	if !s.LastActivity.Equal(wantLast) {
		t.Errorf("last_activity: %v", s.LastActivity)
	}
}

func TestParseLatestTodoSnapshotWins(t *testing.T) {
	s := parseSample(t)
	if len(s.Todos) != 2 {
		t.Fatalf("todos: %+v", s.Todos)
	}
	if len(s.PendingTodos()) != 1 || s.PendingTodos()[0].Content != "fix permissions" {
		t.Errorf("pending todos: %+v", s.PendingTodos())
	}
}

func TestParseLinksAgentSessions(t *testing.T) {
	s := parseSample(t)
	if len(s.AgentSessions) != 1 || s.AgentSessions[0] != "agent-42" {
		t.Errorf("agent sessions: %+v", s.AgentSessions)
	}
}

func TestParseAccessors(t *testing.T) {
	s := parseSample(t)
	if got := s.FilesWritten(); len(got) != 1 || got[0] != "/repo/cache.go" {
		t.Errorf("files written: %v", got)
	}
	if got := s.Commands(); len(got) != 1 || got[0] != "go test ./..." {
		t.Errorf("commands: %v", got)
	}
}

func TestParseEmptyLog(t *testing.T) {
	a := NewAnalyzer(t.TempDir())
	s := a.Parse(strings.NewReader(""))
	if s.Status != StatusEmpty {
		t.Errorf("empty log status: %s", s.Status)
	}
}

func TestListSessionsSkipsSubagentLogs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, encodeProjectPath("/home/dev/webshop"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"sess-1.jsonl", "sess-2.jsonl", "agent-42.jsonl", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	a := NewAnalyzer(root)
	ids, err := a.ListSessions("/home/dev/webshop")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 session ids, got %v", ids)
	}
}

func TestLoadMissingSessionIsNil(t *testing.T) {
	a := NewAnalyzer(t.TempDir())
	s, err := a.Load("/home/dev/webshop", "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("want nil session, got %+v", s)
	}
}

func TestRecentSortsByLastActivity(t *testing.T) {
	root := t.TempDir()
	project := "/home/dev/webshop"
	dir := filepath.Join(root, encodeProjectPath(project))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	older := `{"type":"user","uuid":"u1","timestamp":"2026-08-20T08:00:00Z","message":{"content":"first task"}}` + "\n"
	newer := `{"type":"user","uuid":"u1","timestamp":"2026-08-20T11:00:00Z","message":{"content":"second task"}}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "old.jsonl"), []byte(older), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.jsonl"), []byte(newer), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewAnalyzer(root)
	sessions, err := a.Recent(project, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "new" {
		t.Fatalf("order wrong: %v", sessionIDs(sessions))
	}

	// Limit applies after sorting.
	sessions, err = a.Recent(project, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "new" {
		t.Fatalf("limit wrong: %v", sessionIDs(sessions))
	}
}

func sessionIDs(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.SessionID
	}
	return out
}
