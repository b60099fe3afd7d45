// Package cli wires the taskpilot commands. Each command file registers
// itself with the root command in its init().
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TaskPilot/TaskPilot/internal/config"
	"github.com/TaskPilot/TaskPilot/internal/ledger"
	"github.com/TaskPilot/TaskPilot/internal/progress"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/TaskPilot/TaskPilot/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"  _____         _    ____  _ _       _\n" +
		" |_   _|_ _ ___| | _|  _ \\(_) | ___ | |_\n" +
		"   | |/ _` / __| |/ / |_) | | |/ _ \\| __|\n" +
		"   | | (_| \\__ \\   <|  __/| | | (_) | |_\n" +
		"   |_|\\__,_|___/_|\\_\\_|   |_|_|\\___/ \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "TaskPilot - agent invocation and progress orchestration",
	Long:  color.CyanString(logo) + "\nDelegate tasks to agents, track their progress, and resume interrupted sessions.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func mustCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func newStore(cfg config.Config) *progress.Store {
	return progress.NewStore(cfg.Paths.ProgressRoot)
}

// openLedger is best-effort: a missing or locked ledger never blocks an
// invocation, it only loses history.
func openLedger(cfg config.Config) *ledger.Ledger {
	if cfg.Paths.LedgerPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.LedgerPath), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ledger dir: %v\n", err)
		return nil
	}
	l, err := ledger.Open(cfg.Paths.LedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: ledger unavailable: %v\n", err)
		return nil
	}
	return l
}
