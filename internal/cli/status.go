package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TaskPilot/TaskPilot/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ TaskPilot Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 TaskPilot Status")
		fmt.Printf("Version: %s\n", version)

		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:   ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:   ✗ Not found (defaults in effect)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Status:   ? Unable to load config: " + err.Error())
			return
		}

		fmt.Println("Progress: " + cfg.Paths.ProgressRoot)
		fmt.Println("Sessions: " + cfg.Paths.SessionsRoot)
		if _, err := os.Stat(cfg.Paths.LedgerPath); err == nil {
			fmt.Println("Ledger:   ✓ " + cfg.Paths.LedgerPath)
		} else {
			fmt.Println("Ledger:   ✗ Not created yet (" + cfg.Paths.LedgerPath + ")")
		}
		fmt.Printf("Agents:   %d configured\n", len(cfg.Agents))
		fmt.Printf("Runtime:  %s\n", cfg.Runtime.Command)

		fmt.Println("Status:   Ready")
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-agent invocation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l := openLedger(cfg)
		if l == nil {
			return fmt.Errorf("ledger unavailable")
		}
		defer l.Close()

		stats, err := l.AgentStats()
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(stats)
		}
		if len(stats) == 0 {
			fmt.Println("No invocations recorded.")
			return nil
		}
		fmt.Printf("%-20s %6s %6s %6s %10s %8s\n", "AGENT", "TOTAL", "OK", "FAIL", "AVG", "RETRIES")
		for _, s := range stats {
			avg := time.Duration(s.AvgDurationMS) * time.Millisecond
			fmt.Printf("%-20s %6d %6d %6d %10s %8d\n",
				s.Agent, s.Total, s.Completed, s.Failed, avg.Round(time.Millisecond), s.TotalRetries)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}
