package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TaskPilot/TaskPilot/internal/progress"
)

var (
	progressCmd = &cobra.Command{
		Use:   "progress",
		Short: "Inspect and manage run progress records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	progressListCmd = &cobra.Command{
		Use:   "list",
		Short: "List progress records for a project",
		RunE:  runProgressList,
	}

	progressShowCmd = &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one progress record",
		Args:  cobra.ExactArgs(1),
		RunE:  runProgressShow,
	}

	progressWaitCmd = &cobra.Command{
		Use:   "wait <run-id>",
		Short: "Block until a run finishes, stalls, or times out",
		Long: `Block until a run reaches a terminal state.

Exit codes:
  0  the run completed
  1  the run failed or stopped heartbeating
  2  the timeout elapsed while the run was still alive
  3  no record for the run ever appeared`,
		Args: cobra.ExactArgs(1),
		Run:  runProgressWait,
	}

	progressCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old completed progress records",
		RunE:  runProgressCleanup,
	}

	progressArchiveCmd = &cobra.Command{
		Use:   "archive <run-id>",
		Short: "Move a record into the project archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runProgressArchive,
	}
)

func init() {
	progressCmd.PersistentFlags().String("project", "default", "Project the runs belong to")

	progressListCmd.Flags().Bool("archived", false, "List archived records instead of active ones")
	progressListCmd.Flags().Bool("json", false, "Output machine-readable JSON")

	progressShowCmd.Flags().Bool("json", false, "Output machine-readable JSON")

	progressWaitCmd.Flags().Duration("timeout", 10*time.Minute, "Give up after this long")
	progressWaitCmd.Flags().Duration("poll", 5*time.Second, "Poll interval")
	progressWaitCmd.Flags().Duration("stale-after", 5*time.Minute, "Heartbeat age that counts as stalled")

	progressCleanupCmd.Flags().Duration("max-age", 24*time.Hour, "Delete completed records older than this")
	progressCleanupCmd.Flags().Bool("delete-failed", false, "Also delete old failed records")

	progressCmd.AddCommand(progressListCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressWaitCmd)
	progressCmd.AddCommand(progressCleanupCmd)
	progressCmd.AddCommand(progressArchiveCmd)
	rootCmd.AddCommand(progressCmd)
}

func runProgressList(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")
	archived, _ := cmd.Flags().GetBool("archived")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := newStore(cfg)

	var recs []*progress.Record
	if archived {
		recs, err = store.ListArchived(project)
	} else {
		recs, err = store.List(project)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(recs)
	}

	if len(recs) == 0 {
		fmt.Println("No progress records.")
		return nil
	}
	for _, rec := range recs {
		status := progress.EffectiveStatus(rec, time.Now(), 5*time.Minute)
		fmt.Printf("%-12s %-32s %-10s %s\n", rec.Agent, rec.RunID, colorStatus(status), rec.Phase)
	}
	return nil
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rec, err := newStore(cfg).Read(project, args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(rec)
	}

	fmt.Printf("Run:       %s\n", rec.RunID)
	fmt.Printf("Agent:     %s\n", rec.Agent)
	fmt.Printf("Project:   %s\n", rec.Project)
	fmt.Printf("Status:    %s\n", colorStatus(rec.Status))
	fmt.Printf("Phase:     %s\n", rec.Phase)
	fmt.Printf("Started:   %s\n", rec.StartedAt.Format(time.RFC3339))
	fmt.Printf("Heartbeat: %s\n", rec.LastHeartbeat.Format(time.RFC3339))
	fmt.Printf("Messages:  %d\n", rec.MessagesProcessed)
	if rec.ResultSummary != "" {
		fmt.Printf("Summary:   %s\n", rec.ResultSummary)
	}
	if rec.Error != "" {
		fmt.Printf("Error:     %s\n", rec.Error)
	}
	for _, a := range rec.ArtifactsCreated {
		fmt.Printf("Artifact:  %s\n", a)
	}
	return nil
}

func runProgressWait(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	poll, _ := cmd.Flags().GetDuration("poll")
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rec, err := newStore(cfg).Wait(context.Background(), project, args[0], progress.WaitOptions{
		Timeout:        timeout,
		PollInterval:   poll,
		StaleThreshold: staleAfter,
	})
	if err != nil {
		var nf *progress.NotFoundError
		var te *progress.TimeoutError
		var se *progress.StaleError
		switch {
		case errors.As(err, &nf):
			fmt.Fprintf(os.Stderr, "no progress record for run %s ever appeared\n", args[0])
			os.Exit(3)
		case errors.As(err, &te):
			fmt.Fprintf(os.Stderr, "timed out after %s; run %s was still %s\n", te.Timeout, args[0], te.LastStatus)
			os.Exit(2)
		case errors.As(err, &se):
			fmt.Fprintf(os.Stderr, "run %s stopped heartbeating (last phase: %s)\n", args[0], se.Phase)
			os.Exit(1)
		default:
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if rec.Status == progress.StatusCompleted {
		fmt.Println(color.GreenString("✓ Completed") + ": " + rec.ResultSummary)
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, color.RedString("✗ Failed")+": "+rec.Error)
	os.Exit(1)
}

func runProgressCleanup(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")
	maxAge, _ := cmd.Flags().GetDuration("max-age")
	deleteFailed, _ := cmd.Flags().GetBool("delete-failed")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stats, err := newStore(cfg).Cleanup(project, maxAge, !deleteFailed)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d, kept %d (%d failed kept for diagnosis)\n", stats.Deleted, stats.Kept, stats.KeptFailed)
	return nil
}

func runProgressArchive(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dst, err := newStore(cfg).Archive(project, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Archived to %s\n", dst)
	return nil
}

func colorStatus(s progress.Status) string {
	switch s {
	case progress.StatusCompleted:
		return color.GreenString(string(s))
	case progress.StatusFailed:
		return color.RedString(string(s))
	case progress.StatusStalled:
		return color.YellowString(string(s))
	case progress.StatusRunning:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}
