package resume

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TaskPilot/TaskPilot/internal/session"
)

func sampleSession() *session.Session {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	return &session.Session{
		SessionID:     "abcd1234efgh",
		ProjectPath:   "/home/dev/webshop",
		StartedAt:     start,
		LastActivity:  start.Add(45 * time.Minute),
		Status:        session.StatusStuck,
		InitialPrompt: "Add a caching layer to the product API",
		LastError:     "permission denied: /var/cache",
		ToolCalls: []session.ToolCall{
			{Name: "read_file", Input: map[string]any{"file_path": "/repo/api/products.go"}},
			{Name: "read_file", Input: map[string]any{"file_path": "/repo/api/cache.go"}},
			{Name: "write_file", Input: map[string]any{"file_path": "/repo/api/cache.go"}},
			{Name: "exec", Input: map[string]any{"command": "go test ./api/..."}},
			{Name: "grep", Input: map[string]any{"pattern": "Cache"}},
		},
		Todos: []session.Todo{
			{Content: "design cache interface", Status: "completed"},
			{Content: "wire cache into handler", Status: "in_progress"},
			{Content: "add invalidation", Status: "pending"},
		},
		Messages: []session.Message{
			{Role: "user", Content: "Add a caching layer to the product API", Timestamp: start},
			{Role: "assistant", Content: "Starting with the interface.", Timestamp: start.Add(time.Minute)},
		},
	}
}

func TestGeneratePromptSections(t *testing.T) {
	c := NewCoordinator(session.NewAnalyzer(t.TempDir()))
	prompt := c.GeneratePrompt(sampleSession(), PromptOptions{})

	for _, want := range []string{
		"# RESUME SESSION",
		"`abcd1234efgh`",
		"`/home/dev/webshop`",
		"Add a caching layer to the product API",
		"### Tool Usage Summary",
		"read_file: 2 files",
		"write_file: cache.go",
		"exec: 1 commands",
		"### Files Created/Modified",
		"`/repo/api/cache.go`",
		"### Recent Commands",
		"`go test ./api/...`",
		"[x] design cache interface",
		"[>] wire cache into handler",
		"[ ] add invalidation",
		"## Last Error",
		"permission denied",
		"**Complete pending todos**",
		"**Investigate the error**",
		"### Key Files to Review",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "## Message History") {
		t.Error("message history must be opt-in")
	}
}

func TestGeneratePromptWithMessages(t *testing.T) {
	c := NewCoordinator(session.NewAnalyzer(t.TempDir()))
	prompt := c.GeneratePrompt(sampleSession(), PromptOptions{IncludeMessages: true})
	if !strings.Contains(prompt, "## Message History") {
		t.Error("message history missing")
	}
	if !strings.Contains(prompt, "[ASSISTANT]") || !strings.Contains(prompt, "[USER]") {
		t.Error("roles missing from message history")
	}
}

func TestGeneratePromptNoErrorBranch(t *testing.T) {
	s := sampleSession()
	s.LastError = ""
	s.Todos = []session.Todo{{Content: "done", Status: "completed"}}
	c := NewCoordinator(session.NewAnalyzer(t.TempDir()))
	prompt := c.GeneratePrompt(s, PromptOptions{})

	if strings.Contains(prompt, "## Last Error") {
		t.Error("error section should be absent")
	}
	if !strings.Contains(prompt, "**Review the original task**") {
		t.Error("no-pending-todos instruction missing")
	}
	if !strings.Contains(prompt, "**Continue from where work stopped**") {
		t.Error("no-error instruction missing")
	}
}

func TestTruncateMiddleKeepsHeadAndTail(t *testing.T) {
	text := strings.Repeat("a", 1500) + strings.Repeat("z", 1500)
	got := truncateMiddle(text, 2000)
	if !strings.HasPrefix(got, "a") || !strings.HasSuffix(got, "z") {
		t.Error("head or tail lost")
	}
	if !strings.Contains(got, "[truncated]") {
		t.Error("truncation marker missing")
	}
	if len(got) >= len(text) {
		t.Error("nothing was truncated")
	}
	if truncateMiddle("short", 2000) != "short" {
		t.Error("short text must pass through")
	}
}

func TestGenerateMinimal(t *testing.T) {
	c := NewCoordinator(session.NewAnalyzer(t.TempDir()))
	got := c.GenerateMinimal(sampleSession())

	if !strings.Contains(got, "RESUME: Continue previous session (ID: abcd1234)") {
		t.Errorf("header wrong:\n%s", got)
	}
	if !strings.Contains(got, "5 tool calls") {
		t.Error("tool call count missing")
	}
	if !strings.Contains(got, "cache.go") {
		t.Error("modified files missing")
	}
	if !strings.Contains(got, "wire cache into handler, add invalidation") {
		t.Error("pending todos missing")
	}
	if !strings.Contains(got, "Last error: permission denied") {
		t.Error("error missing")
	}
}

func TestCheckForStuckSessionsFiltersByAge(t *testing.T) {
	root := t.TempDir()
	project := "/home/dev/webshop"
	dir := filepath.Join(root, strings.ReplaceAll(project, "/", "-"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	line := func(ts time.Time) string {
		return `{"type":"user","uuid":"u1","timestamp":"` + ts.Format(time.RFC3339) + `","message":{"content":"task"},"todos":[{"content":"x","status":"pending"}]}` + "\n"
	}
	// Quiet for 2h with pending todos: stuck and recent enough.
	if err := os.WriteFile(filepath.Join(dir, "recent.jsonl"), []byte(line(now.Add(-2*time.Hour))), 0o644); err != nil {
		t.Fatal(err)
	}
	// Stuck but last active 3 days ago: outside the window.
	if err := os.WriteFile(filepath.Join(dir, "ancient.jsonl"), []byte(line(now.Add(-72*time.Hour))), 0o644); err != nil {
		t.Fatal(err)
	}

	a := session.NewAnalyzer(root)
	a.Now = func() time.Time { return now }
	c := NewCoordinator(a)
	c.now = func() time.Time { return now }

	stuck, err := c.CheckForStuckSessions(project, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(stuck) != 1 || stuck[0].SessionID != "recent" {
		t.Fatalf("stuck sessions: %+v", stuck)
	}
	if stuck[0].PendingTodos != 1 {
		t.Errorf("pending todos: %+v", stuck[0])
	}
}

func TestFormatAlert(t *testing.T) {
	if FormatAlert(nil) != "" {
		t.Error("no sessions must produce no alert")
	}
	out := FormatAlert([]StuckSummary{
		{ShortID: "abcd1234", Task: "fix the importer", PendingTodos: 2, HasError: true},
		{ShortID: "efgh5678", Task: "update docs"},
	})
	if !strings.Contains(out, "[!] `abcd1234`") {
		t.Errorf("error marker missing:\n%s", out)
	}
	if !strings.Contains(out, "[?] `efgh5678`") {
		t.Errorf("non-error marker missing:\n%s", out)
	}
	if !strings.Contains(out, "2 pending todos") {
		t.Error("pending todo count missing")
	}
	if !strings.Contains(out, "taskpilot sessions resume") {
		t.Error("resume instruction missing")
	}
}

func TestFindByPrefix(t *testing.T) {
	root := t.TempDir()
	project := "/home/dev/webshop"
	dir := filepath.Join(root, strings.ReplaceAll(project, "/", "-"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `{"type":"user","uuid":"u1","timestamp":"2026-08-20T10:00:00Z","message":{"content":"task"}}` + "\n"
	for _, id := range []string{"abc-111", "abc-222", "xyz-333"} {
		if err := os.WriteFile(filepath.Join(dir, id+".jsonl"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewCoordinator(session.NewAnalyzer(root))

	s, err := c.Find(project, "xyz")
	if err != nil {
		t.Fatal(err)
	}
	if s.SessionID != "xyz-333" {
		t.Errorf("prefix lookup: %q", s.SessionID)
	}

	if _, err := c.Find(project, "abc"); err == nil {
		t.Error("ambiguous prefix must fail")
	}
	if _, err := c.Find(project, "nope"); err == nil {
		t.Error("missing session must fail")
	}

	// Exact id bypasses prefix search.
	s, err = c.Find(project, "abc-111")
	if err != nil {
		t.Fatal(err)
	}
	if s.SessionID != "abc-111" {
		t.Errorf("exact lookup: %q", s.SessionID)
	}
}
