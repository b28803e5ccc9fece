package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recentLimit int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent conversation exchanges",
	Long: `Show the last exchanges from the per-user short-term log.

Unlike the in-memory context window, the short-term log survives
restarts.

Examples:
  chatmem recent --user alice
  chatmem recent --group work --sender bob -n 10`,
	RunE: runRecent,
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 5, "number of exchanges")
}

func runRecent(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlags(); err != nil {
		return err
	}

	entries := handler.RecentContext(flagUser, flagGroup, flagSender, recentLimit)
	if len(entries) == 0 {
		fmt.Println("No recent conversations.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("[%s]\n", e.Timestamp.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  User: %s\n", e.User)
		fmt.Printf("  Bot:  %s\n\n", e.Bot)
	}
	return nil
}
