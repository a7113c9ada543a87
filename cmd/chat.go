package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/steward/core/ensemble"
	"github.com/adalundhe/steward/core/personas"
	"github.com/adalundhe/steward/core/session"
	"github.com/adalundhe/steward/core/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive copilot session",
	Long:  `Open a conversation with the persona ensemble for the selected project.`,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	completer, err := a.completer()
	if err != nil {
		return err
	}

	sess := session.New(flagProject)
	orch := ensemble.New(personas.NewRegistry(), completer, a.memory, sess,
		ensemble.WithConfig(a.cfg.Get().EnsembleConfig()),
		ensemble.WithBus(a.bus),
		ensemble.WithLogger(a.log),
		ensemble.WithTools(tools.NewRegistry()),
	)

	fmt.Printf("steward chat - project %q (exit with /quit)\n", flagProject)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		resp, err := orch.ProcessMessage(cmd.Context(), line, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResponse(resp)
	}
}

func printResponse(resp *ensemble.Response) {
	fmt.Printf("\n[%s]\n%s\n", resp.Mode, resp.Message)

	if resp.ShowAttribution && resp.Deliberation != nil {
		d := resp.Deliberation
		fmt.Printf("\n-- deliberation (%d personas", len(d.Contributions))
		if d.ConsensusReached() {
			fmt.Print(", consensus")
		} else {
			fmt.Printf(", %d conflicts", len(d.Conflicts))
		}
		fmt.Println(") --")
		for _, c := range d.Conflicts {
			fmt.Printf("  %s vs %s: %s\n", c.First, c.Second, c.Topic)
		}
	}

	if ch := resp.Challenge; ch != nil {
		fmt.Printf("\n!! challenge (%s): %s\n", ch.Trigger, ch.Claim)
		for _, ev := range ch.CounterEvidence {
			fmt.Printf("  - [%s] %s\n", ev.Strength, ev.Point)
		}
		if ch.ClarifyingQuestion != "" {
			fmt.Printf("  ? %s\n", ch.ClarifyingQuestion)
		}
		if ch.AlternativeFraming != "" {
			fmt.Printf("  ~ %s\n", ch.AlternativeFraming)
		}
	}
	fmt.Println()
}
