package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigPathOverrides(t *testing.T) {
	t.Setenv("TASKPILOT_CONFIG", "/etc/taskpilot/custom.json")
	path, err := ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != "/etc/taskpilot/custom.json" {
		t.Errorf("explicit override: %q", path)
	}

	t.Setenv("TASKPILOT_CONFIG", "")
	t.Setenv("TASKPILOT_HOME", "/srv/pilot")
	path, err = ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join("/srv/pilot", ConfigDir, ConfigFile) {
		t.Errorf("home override: %q", path)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("TASKPILOT_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Invoke.MaxDepth != 4 {
		t.Errorf("max depth default: %d", cfg.Invoke.MaxDepth)
	}
	if cfg.Invoke.HeartbeatEvery != 5 || cfg.Invoke.SummaryLimit != 200 {
		t.Errorf("invoke defaults: %+v", cfg.Invoke)
	}
	if !cfg.Sweep.KeepFailed {
		t.Error("keepFailed should default to true")
	}
	if cfg.Sweep.MaxAge != 24*time.Hour {
		t.Errorf("sweep max age: %v", cfg.Sweep.MaxAge)
	}
}

func TestLoadFileOverlayAndNormalize(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TASKPILOT_HOME", home)

	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	body := `{
		"invoke": {"maxDepth": 6, "summaryLimit": 0},
		"agents": {"web-researcher": {"type": "research", "prompt": "p"}}
	}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Invoke.MaxDepth != 6 {
		t.Errorf("file value not applied: %d", cfg.Invoke.MaxDepth)
	}
	// Zero values in the file fall back to defaults.
	if cfg.Invoke.SummaryLimit != 200 {
		t.Errorf("summary limit not normalized: %d", cfg.Invoke.SummaryLimit)
	}
	if _, ok := cfg.Agents["web-researcher"]; !ok {
		t.Error("agents not loaded from file")
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	t.Setenv("TASKPILOT_HOME", t.TempDir())
	t.Setenv("TASKPILOT_MAX_DEPTH", "2")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Invoke.MaxDepth != 2 {
		t.Errorf("env override not applied: %d", cfg.Invoke.MaxDepth)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("TASKPILOT_HOME", t.TempDir())
	cfg := Default()
	cfg.Invoke.DefaultProject = "webshop"
	if err := Save(cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Invoke.DefaultProject != "webshop" {
		t.Errorf("round trip: %q", got.Invoke.DefaultProject)
	}
}
