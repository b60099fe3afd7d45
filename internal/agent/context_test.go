package agent

import (
	"testing"
)

func TestContextFromEnv(t *testing.T) {
	t.Setenv(EnvDepth, "2")
	t.Setenv(EnvRunID, "run_x")
	ic := ContextFromEnv()
	if ic.Depth != 2 || ic.RunID != "run_x" {
		t.Errorf("context: %+v", ic)
	}
}

func TestContextFromEnvMalformed(t *testing.T) {
	for _, v := range []string{"", "abc", "-3"} {
		t.Setenv(EnvDepth, v)
		t.Setenv(EnvRunID, "")
		if ic := ContextFromEnv(); ic.Depth != 0 {
			t.Errorf("depth %q parsed as %d, want 0", v, ic.Depth)
		}
	}
}

func TestChildIncrementsDepth(t *testing.T) {
	ic := InvocationContext{Depth: 1, RunID: "run_p"}
	child := ic.Child()
	if child.Depth != 2 || child.RunID != "run_p" {
		t.Errorf("child: %+v", child)
	}
	// Parent is unchanged: contexts travel by value.
	if ic.Depth != 1 {
		t.Errorf("parent mutated: %+v", ic)
	}
}

func TestEnvRoundTrip(t *testing.T) {
	ic := InvocationContext{Depth: 3, RunID: "run_env"}
	env := ic.Env()
	if len(env) != 2 {
		t.Fatalf("env: %v", env)
	}
	if env[0] != EnvDepth+"=3" || env[1] != EnvRunID+"=run_env" {
		t.Errorf("env pairs: %v", env)
	}
}
