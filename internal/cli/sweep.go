package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TaskPilot/TaskPilot/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Clean up old progress records and ledger history",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().Bool("daemon", false, "Keep running and sweep every configured interval")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	daemon, _ := cmd.Flags().GetBool("daemon")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := openLedger(cfg)
	if l != nil {
		defer l.Close()
	}
	sw := sweep.New(cfg.Sweep, newStore(cfg), l)

	if !daemon {
		res, err := sw.Sweep()
		if err != nil {
			return err
		}
		fmt.Printf("Swept %d projects: deleted %d, kept %d, pruned %d ledger rows\n",
			res.Projects, res.Deleted, res.Kept, res.LedgerPruned)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sw.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
