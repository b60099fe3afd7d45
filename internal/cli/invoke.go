package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TaskPilot/TaskPilot/internal/agent"
	"github.com/TaskPilot/TaskPilot/internal/provider"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <agent> <task...>",
	Short: "Delegate a task to an agent and wait for the result",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runInvoke,
}

func init() {
	invokeCmd.Flags().String("run-id", "", "Use a preassigned run id (set by a detaching parent)")
	invokeCmd.Flags().String("project", "", "Project the run belongs to")
	invokeCmd.Flags().Bool("detach", false, "Run in the background and return immediately")
	invokeCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	project, _ := cmd.Flags().GetString("project")
	detach, _ := cmd.Flags().GetBool("detach")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l := openLedger(cfg)
	if l != nil {
		defer l.Close()
	}
	var recorder agent.Recorder
	if l != nil {
		recorder = l
	}

	runtime := provider.NewSubprocessRuntime(cfg.Runtime.Command, cfg.Runtime.Args...)
	orch := agent.New(cfg, newStore(cfg), runtime, recorder)

	req := agent.Request{
		Agent:   args[0],
		Task:    strings.Join(args[1:], " "),
		RunID:   runID,
		Project: project,
	}
	ic := agent.ContextFromEnv()

	var res *agent.Result
	if detach {
		res, err = orch.SpawnDetached(ic, req)
	} else {
		res, err = orch.Invoke(context.Background(), ic, req)
	}
	if err != nil && res == nil {
		return err
	}

	if asJSON {
		return printJSON(res)
	}

	if res.Background {
		fmt.Printf("Background agent started.\n")
		fmt.Printf("Run ID:  %s\n", res.RunID)
		fmt.Printf("Project: %s\n", res.Project)
		fmt.Printf("Check progress: taskpilot progress show %s --project %s\n", res.RunID, res.Project)
		return nil
	}

	if res.Success {
		fmt.Println(color.GreenString("✓ Completed") + fmt.Sprintf(" (%dms, %d retries)", res.DurationMS, res.RetryAttempts))
		if res.Output != "" {
			fmt.Println()
			fmt.Println(res.Output)
		}
		return nil
	}

	fmt.Fprintln(os.Stderr, color.RedString("✗ Failed")+": "+res.Error)
	os.Exit(1)
	return nil
}
