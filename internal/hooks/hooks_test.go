package hooks

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseAction(t *testing.T) {
	if ParseAction("validate_config") != ActionValidateConfig {
		t.Error("validate_config not recognized")
	}
	if ParseAction("run_verifier") != ActionRunVerifier {
		t.Error("run_verifier not recognized")
	}
	if ParseAction("totally_new_action") != ActionUnknown {
		t.Error("unknown id must map to ActionUnknown")
	}
	if ParseAction("") != ActionUnknown {
		t.Error("empty id must map to ActionUnknown")
	}
}

func TestRunPreValidateConfigAborts(t *testing.T) {
	r := NewRunner(nil)
	err := r.RunPre([]string{"validate_config"}, TaskContext{
		Agent: "web-researcher",
		RequiredSet: map[string]string{
			"name": "web-researcher",
			"type": "research",
			// prompt missing
		},
	})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("want *AbortError, got %v", err)
	}
	if abort.Action != "validate_config" {
		t.Errorf("abort action: %q", abort.Action)
	}
}

func TestRunPreValidateConfigPasses(t *testing.T) {
	r := NewRunner(nil)
	err := r.RunPre([]string{"validate_config", "log_start"}, TaskContext{
		Agent: "web-researcher",
		Task:  "look something up",
		RequiredSet: map[string]string{
			"name":   "web-researcher",
			"type":   "research",
			"prompt": "You research things.",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunPreUnknownActionIsSkipped(t *testing.T) {
	r := NewRunner(nil)
	if err := r.RunPre([]string{"invented_by_newer_config"}, TaskContext{}); err != nil {
		t.Fatalf("unknown action must be skipped, got %v", err)
	}
}

func TestRunPostVerifierRequiresFileChanges(t *testing.T) {
	r := NewRunner(nil)
	called := false
	r.RunPost([]string{"run_verifier"}, TaskContext{
		Task:        "refactor the parser",
		FileChanges: false,
		SpawnFollowup: func(agent, task string) error {
			called = true
			return nil
		},
	})
	if called {
		t.Error("verifier must not spawn without file changes")
	}
}

func TestRunPostVerifierSpawnsFollowup(t *testing.T) {
	r := NewRunner(nil)
	var gotAgent, gotTask string
	r.RunPost([]string{"run_verifier", "log_finish"}, TaskContext{
		Task:        "refactor the parser",
		FileChanges: true,
		SpawnFollowup: func(agent, task string) error {
			gotAgent, gotTask = agent, task
			return nil
		},
	})
	if gotAgent != "verifier" {
		t.Errorf("spawned agent: %q", gotAgent)
	}
	if gotTask == "" || gotTask == "refactor the parser" {
		t.Errorf("verifier task should wrap the original: %q", gotTask)
	}
}

func TestRunPostFailuresNeverPropagate(t *testing.T) {
	r := NewRunner(nil)
	// Must not panic or propagate the error.
	r.RunPost([]string{"run_verifier"}, TaskContext{
		Task:        "x",
		FileChanges: true,
		SpawnFollowup: func(agent, task string) error {
			return fmt.Errorf("verifier crashed")
		},
	})
}
