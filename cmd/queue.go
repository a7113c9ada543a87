package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/holdqueue"
)

var (
	queueHold int

	emailTo      []string
	emailSubject string
	emailBody    string

	jiraIssue   string
	jiraFrom    string
	jiraTo      string
	jiraComment string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue a proposed action behind its graduation hold",
}

var queueEmailCmd = &cobra.Command{
	Use:   "email",
	Short: "Queue a stakeholder email",
	RunE:  runQueueEmail,
}

var queueJiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "Queue an issue status transition",
	RunE:  runQueueJira,
}

func init() {
	queueCmd.PersistentFlags().IntVar(&queueHold, "hold", 0, "suggested hold minutes (advisory; policy decides)")

	queueEmailCmd.Flags().StringSliceVar(&emailTo, "to", nil, "recipient addresses")
	queueEmailCmd.Flags().StringVar(&emailSubject, "subject", "", "subject line")
	queueEmailCmd.Flags().StringVar(&emailBody, "body", "", "message body")
	_ = queueEmailCmd.MarkFlagRequired("to")
	_ = queueEmailCmd.MarkFlagRequired("subject")

	queueJiraCmd.Flags().StringVar(&jiraIssue, "issue", "", "issue key")
	queueJiraCmd.Flags().StringVar(&jiraFrom, "from", "", "current status")
	queueJiraCmd.Flags().StringVar(&jiraTo, "to", "", "target status")
	queueJiraCmd.Flags().StringVar(&jiraComment, "comment", "", "transition comment")
	_ = queueJiraCmd.MarkFlagRequired("issue")
	_ = queueJiraCmd.MarkFlagRequired("to")

	queueCmd.AddCommand(queueEmailCmd)
	queueCmd.AddCommand(queueJiraCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueEmail(cmd *cobra.Command, _ []string) error {
	return queuePayload(cmd, actions.EmailPayload{
		To:      emailTo,
		Subject: emailSubject,
		Body:    emailBody,
	})
}

func runQueueJira(cmd *cobra.Command, _ []string) error {
	return queuePayload(cmd, actions.JiraTransitionPayload{
		IssueKey:   jiraIssue,
		FromStatus: jiraFrom,
		ToStatus:   jiraTo,
		Comment:    jiraComment,
	})
}

func queuePayload(cmd *cobra.Command, payload actions.Payload) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.queue.QueueAction(cmd.Context(), flagProject, payload, queueHold)
	if err != nil {
		return err
	}
	fmt.Printf("queued %s (%s) at tier %d, hold %s\n",
		res.Action.ID, payload.ActionType(), res.Tier, holdqueue.FormatHoldTime(res.HoldMinutes))
	return nil
}
