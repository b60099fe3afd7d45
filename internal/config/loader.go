package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".taskpilot"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. TASKPILOT_CONFIG
// overrides the file directly; TASKPILOT_HOME relocates the base directory.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("TASKPILOT_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("TASKPILOT_HOME")); h != "" {
		return expandHome(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		base, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, path[1:]), nil
	}
	return path, nil
}

// Load reads the config file (if present) over defaults, then applies
// TASKPILOT_* environment overrides.
func Load() (Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := envconfig.Process("taskpilot", &cfg); err != nil {
		return cfg, fmt.Errorf("config: env overrides: %w", err)
	}

	normalize(&cfg)
	return cfg, nil
}

// Save writes the config file, creating the directory if needed.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return os.Rename(tmp, path)
}

func normalize(cfg *Config) {
	def := Default()
	if cfg.Invoke.MaxDepth <= 0 {
		cfg.Invoke.MaxDepth = def.Invoke.MaxDepth
	}
	if cfg.Invoke.HeartbeatEvery <= 0 {
		cfg.Invoke.HeartbeatEvery = def.Invoke.HeartbeatEvery
	}
	if cfg.Invoke.SummaryLimit <= 0 {
		cfg.Invoke.SummaryLimit = def.Invoke.SummaryLimit
	}
	if strings.TrimSpace(cfg.Invoke.DefaultProject) == "" {
		cfg.Invoke.DefaultProject = def.Invoke.DefaultProject
	}
	if strings.TrimSpace(cfg.Paths.ProgressRoot) == "" {
		cfg.Paths.ProgressRoot = def.Paths.ProgressRoot
	}
	if strings.TrimSpace(cfg.Paths.SessionsRoot) == "" {
		cfg.Paths.SessionsRoot = def.Paths.SessionsRoot
	}
	if strings.TrimSpace(cfg.Paths.LedgerPath) == "" {
		cfg.Paths.LedgerPath = def.Paths.LedgerPath
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = def.Sweep.Interval
	}
	if cfg.Sweep.MaxAge <= 0 {
		cfg.Sweep.MaxAge = def.Sweep.MaxAge
	}
	if strings.TrimSpace(cfg.Sweep.LockPath) == "" {
		cfg.Sweep.LockPath = def.Sweep.LockPath
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
}
