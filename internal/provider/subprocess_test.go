package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/TaskPilot/TaskPilot/internal/retry"
)

func TestStreamRequiresCommand(t *testing.T) {
	r := NewSubprocessRuntime("  ")
	err := r.Stream(context.Background(), &TaskRequest{Agent: "web-researcher", Task: "t"}, func(Event) {})
	if err == nil || !strings.Contains(err.Error(), "no runtime command") {
		t.Errorf("want missing-command error, got %v", err)
	}
}

func TestStreamParsesEventLines(t *testing.T) {
	// printf stands in for the agent runtime; the agent and task args it
	// receives are harmless extra operands.
	script := `printf '%s\n%s\n%s\n' ` +
		`'{"type":"text","text":"hello"}' ` +
		`'not json' ` +
		`'{"type":"tool_use","tool_name":"exec","tool_input":{"command":"ls"}}'`
	r := NewSubprocessRuntime("sh", "-c", script, "--")

	var events []Event
	err := r.Stream(context.Background(), &TaskRequest{Agent: "web-researcher", Task: "list files"}, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventText || events[0].Text != "hello" {
		t.Errorf("first event: %+v", events[0])
	}
	if events[1].Type != EventToolUse || events[1].ToolName != "exec" {
		t.Errorf("second event: %+v", events[1])
	}
	if events[1].ToolInput["command"] != "ls" {
		t.Errorf("tool input: %+v", events[1].ToolInput)
	}
}

func TestStreamReportsRuntimeFailure(t *testing.T) {
	r := NewSubprocessRuntime("sh", "-c", "exit 3", "--")
	err := r.Stream(context.Background(), &TaskRequest{Agent: "web-researcher", Task: "t"}, func(Event) {})
	if err == nil || !strings.Contains(err.Error(), "runtime exited") {
		t.Errorf("want exit error, got %v", err)
	}
}

func TestStreamSurfacesStderrDiagnostics(t *testing.T) {
	// A rate-limited runtime reports its diagnostic on stderr and exits
	// non-zero. That text must reach the error so the orchestrator's
	// classifier can see it and retry instead of failing the run.
	r := NewSubprocessRuntime("sh", "-c", `echo "429 too many requests, retry-after: 7" >&2; exit 1`, "--")
	err := r.Stream(context.Background(), &TaskRequest{Agent: "web-researcher", Task: "t"}, func(Event) {})
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "429 too many requests") {
		t.Fatalf("stderr diagnostic missing from error: %v", err)
	}
	if !retry.IsRateLimit(err) {
		t.Errorf("error not classified as rate limit: %v", err)
	}
	if got := retry.ExtractRetryAfter(err); got != 7*time.Second {
		t.Errorf("retry-after hint: %v", got)
	}
}

func TestStreamBoundsStderrCapture(t *testing.T) {
	var tail stderrTail
	if _, err := tail.Write([]byte(strings.Repeat("x", stderrTailCap))); err != nil {
		t.Fatal(err)
	}
	if _, err := tail.Write([]byte("rate limit exceeded")); err != nil {
		t.Fatal(err)
	}
	got := tail.String()
	if len(got) > stderrTailCap {
		t.Errorf("tail grew past cap: %d bytes", len(got))
	}
	// The newest bytes win when the cap is exceeded.
	if !strings.HasSuffix(got, "rate limit exceeded") {
		t.Errorf("latest stderr output lost: %q", got[len(got)-40:])
	}
}
