package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/podium-performance/funnel-cli/internal/reply"
	"github.com/podium-performance/funnel-cli/pkg/anthropic"
)

var replyCmd = &cobra.Command{
	Use:   "reply <message>",
	Short: "Suggest replies for an incoming prospect message",
	Long:  "Retrieves the closest past conversations from the Messenger history export and shows how they were answered. With --draft, Claude composes a fresh reply in the same voice, grounded on the retrieved exchanges.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		incoming := strings.TrimSpace(args[0])
		if incoming == "" {
			return eris.New("message text is empty")
		}

		top, _ := cmd.Flags().GetInt("top")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		draft, _ := cmd.Flags().GetBool("draft")

		lib, err := reply.LoadLibrary(historyPath(), cfg.Outreach.SenderName)
		if err != nil {
			return err
		}

		suggestions := lib.Suggest(incoming, top, threshold)
		if len(suggestions) == 0 {
			fmt.Fprintln(os.Stderr, "No similar past conversations found.")
			if !draft {
				return nil
			}
		}

		for i, s := range suggestions {
			fmt.Printf("-- match %d (%.0f%% similar, from %s)\n", i+1, s.Confidence*100, s.Sender)
			fmt.Printf("   they said: %s\n", oneLine(s.Trigger, 120))
			fmt.Printf("   you said:  %s\n\n", s.Reply)
		}

		if !draft {
			return nil
		}
		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic api key is not configured (set anthropic.key)")
		}

		drafter := reply.NewDrafter(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		text, err := drafter.Draft(ctx, incoming, suggestions)
		if err != nil {
			return err
		}
		fmt.Printf("-- draft\n%s\n", text)
		return nil
	},
}

func init() {
	f := replyCmd.Flags()
	f.Int("top", 3, "max suggestions to retrieve")
	f.Float64("threshold", 0, "min similarity to count as relevant (0 = default)")
	f.Bool("draft", false, "also draft a reply with Claude from the retrieved examples")
	rootCmd.AddCommand(replyCmd)
}

// historyPath locates the Messenger export, honoring a feed source
// override the same way a reconciliation run would.
func historyPath() string {
	loc := "fb_history"
	if override, ok := cfg.Feeds.Sources["fb_history"]; ok {
		loc = override
	}
	return dataPath(loc)
}

// oneLine collapses whitespace and truncates for display.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
