package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	decidedBy    string
	cancelReason string
)

var approveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a pending action and execute it now",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <action-id>",
	Short: "Cancel a pending action and reset the autonomy streak",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	approveCmd.Flags().StringVar(&decidedBy, "by", "cli", "who decided")
	cancelCmd.Flags().StringVar(&decidedBy, "by", "cli", "who decided")
	cancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "why the action was cancelled")
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	action, err := a.queue.ApproveAction(cmd.Context(), flagProject, args[0], &logExecutor{log: a.log}, decidedBy)
	if err != nil {
		return err
	}
	if action == nil {
		fmt.Fprintln(os.Stderr, "nothing to approve: action missing or already decided")
		return nil
	}
	fmt.Printf("approved and executed %s (%s)\n", action.ID, action.Type)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	action, err := a.queue.CancelAction(cmd.Context(), flagProject, args[0], cancelReason, decidedBy)
	if err != nil {
		return err
	}
	if action == nil {
		fmt.Fprintln(os.Stderr, "nothing to cancel: action missing or already decided")
		return nil
	}
	fmt.Printf("cancelled %s (%s)\n", action.ID, action.Type)
	return nil
}
