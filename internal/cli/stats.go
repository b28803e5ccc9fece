package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/chatmem/chatmem/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	Long: `Show per-user memory counts and operation timings for the current
process.

Examples:
  chatmem stats
  chatmem stats --user alice`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	owners := memStore.Owners()
	if flagUser != "" || flagGroup != "" || flagSender != "" {
		if err := requireOwnerFlags(); err != nil {
			return err
		}
		owners = []string{models.OwnerKey(flagUser, flagGroup, flagSender)}
	}

	if len(owners) == 0 {
		fmt.Println("No memories stored.")
	} else {
		fmt.Println("Memories by owner:")
		for _, owner := range owners {
			pending := memStore.Pending(owner)
			if pending > 0 {
				fmt.Printf("  %-30s %5d (%d pending reindex)\n", owner, memStore.Count(owner), pending)
			} else {
				fmt.Printf("  %-30s %5d\n", owner, memStore.Count(owner))
			}
		}
	}

	snap := memStore.Metrics().Snapshot()
	if len(snap.Operations) == 0 {
		return nil
	}

	fmt.Println("\nOperations this session:")
	ops := make([]string, 0, len(snap.Operations))
	for op := range snap.Operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		m := snap.Operations[op]
		fmt.Printf("  %-14s count=%d errors=%d avg=%.1fms min=%dms max=%dms\n",
			op, m.Count, m.Errors, m.AvgTimeMs, m.MinTimeMs, m.MaxTimeMs)
	}
	return nil
}
