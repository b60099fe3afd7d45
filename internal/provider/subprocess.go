package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// SubprocessRuntime drives an external agent binary and parses its stdout
// as one JSON event per line. Lines that do not decode are skipped; the
// stream is owned by the child and may be cut off mid-line on crash.
type SubprocessRuntime struct {
	Command string
	Args    []string
}

// stderrTail retains the last few KB written to it. The runtime's stderr
// carries its failure diagnostics (rate-limit messages included), so the
// tail must survive into the error the orchestrator classifies.
type stderrTail struct {
	buf []byte
}

const stderrTailCap = 4 * 1024

func (t *stderrTail) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailCap {
		t.buf = t.buf[len(t.buf)-stderrTailCap:]
	}
	return len(p), nil
}

func (t *stderrTail) String() string { return string(t.buf) }

// NewSubprocessRuntime creates a runtime around the given command. Extra
// args are passed before the agent name and task.
func NewSubprocessRuntime(command string, args ...string) *SubprocessRuntime {
	return &SubprocessRuntime{Command: command, Args: args}
}

// Stream implements Runtime.
func (r *SubprocessRuntime) Stream(ctx context.Context, req *TaskRequest, onEvent func(Event)) error {
	if strings.TrimSpace(r.Command) == "" {
		return fmt.Errorf("provider: no runtime command configured")
	}

	args := append(append([]string{}, r.Args...), req.Agent, req.Task)
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--tools", strings.Join(req.AllowedTools, ","))
	}

	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Env = append(os.Environ(), req.Env...)
	var stderr stderrTail
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("provider: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("provider: start runtime: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			slog.Debug("Skipping unparseable runtime event", "error", err)
			continue
		}
		onEvent(ev)
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("provider: runtime exited: %w: %s", err, msg)
		}
		return fmt.Errorf("provider: runtime exited: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("provider: read runtime stream: %w", scanErr)
	}
	return nil
}
