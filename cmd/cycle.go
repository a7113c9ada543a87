package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var cycleWatch bool

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Execute actions whose hold has expired",
	Long: `Run one hold-queue pass: every pending action past its hold expiry is
executed and recorded as a graduation approval. With --watch, repeat at the
configured poll interval until interrupted.`,
	RunE: runCycle,
}

func init() {
	cycleCmd.Flags().BoolVarP(&cycleWatch, "watch", "w", false, "keep polling at the configured interval")
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	executor := &logExecutor{log: a.log}

	runOnce := func() error {
		res, err := a.queue.ProcessQueue(cmd.Context(), executor)
		if err != nil {
			return err
		}
		fmt.Printf("processed=%d executed=%d errors=%d\n", res.Processed, res.Executed, len(res.Errors))
		for _, pe := range res.Errors {
			fmt.Fprintf(os.Stderr, "  action %s: %v\n", pe.ActionID, pe.Err)
		}
		return nil
	}

	if !cycleWatch {
		return runOnce()
	}

	interval := a.cfg.Get().HoldQueue.PollInterval.Std()
	a.log.Info("hold queue watch started", slog.Duration("interval", interval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(); err != nil {
			a.log.Error("queue pass failed", slog.String("error", err.Error()))
		}
		select {
		case <-ticker.C:
		case <-stop:
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}
