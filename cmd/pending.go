package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/steward/core/holdqueue"
)

var pendingAll bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List actions waiting out their hold",
	RunE:  runPending,
}

var graduationCmd = &cobra.Command{
	Use:   "graduation",
	Short: "Show the project's autonomy trust per action type",
	RunE:  runGraduation,
}

func init() {
	pendingCmd.Flags().BoolVarP(&pendingAll, "all", "a", false, "list pending actions across every project")
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(graduationCmd)
}

func runPending(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	var pending []*holdqueue.HeldAction
	if pendingAll {
		pending, err = a.queue.AllPendingActions(cmd.Context())
	} else {
		pending, err = a.queue.PendingActions(cmd.Context(), flagProject)
	}
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("no pending actions")
		return nil
	}

	now := time.Now()
	for _, action := range pending {
		rem := holdqueue.TimeRemaining(action.HoldExpiresAt, now)
		status := fmt.Sprintf("%dm %ds remaining", rem.Minutes, rem.Seconds)
		if rem.Expired {
			status = "ready"
		}
		fmt.Printf("%s  %-20s %-18s %s\n", action.ID, action.Project, action.Type, status)
	}
	return nil
}

func runGraduation(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	states, err := a.queue.ProjectGraduationStates(cmd.Context(), flagProject)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Printf("no graduation history for project %q\n", flagProject)
		return nil
	}

	policy := a.cfg.Get().HoldQueue.Policy()
	for _, gs := range states {
		hold := holdqueue.FormatHoldTime(policy.HoldMinutes(gs.Tier))
		fmt.Printf("%-18s tier %d  streak %d  hold %s\n",
			gs.ActionType, gs.Tier, gs.ConsecutiveApprovals, hold)
	}
	return nil
}
