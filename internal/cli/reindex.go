package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chatmem/chatmem/internal/models"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed and rebuild a user's semantic index",
	Long: `Re-embed every stored memory for a user with the current embedding
backend and rebuild the user's slice of the index.

Use this after an embedding outage left memories logged but unindexed,
or after switching embedding models. This is an explicit migration
pass, never something that happens behind a query.

Examples:
  chatmem reindex --user alice`,
	RunE: runReindex,
}

func runReindex(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlags(); err != nil {
		return err
	}
	owner := models.OwnerKey(flagUser, flagGroup, flagSender)

	total := memStore.Count(owner)
	if total == 0 {
		fmt.Println("Nothing to reindex.")
		return nil
	}
	fmt.Printf("Reindexing %d memories for %s (%d pending)\n",
		total, owner, memStore.Pending(owner))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := memStore.StartReindex(ctx, owner)

	// Full progress UI only on a real terminal.
	if term.IsTerminal(int(os.Stdout.Fd())) {
		cancelled, err := runReindexProgress(job)
		if err != nil {
			return err
		}
		if cancelled {
			cancel()
			fmt.Println("Cancelled.")
			return nil
		}
	} else {
		for !job.Done() {
			time.Sleep(200 * time.Millisecond)
		}
	}

	if err := job.Wait(); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	fmt.Printf("Done. %d memories indexed, %d still pending.\n",
		memStore.Count(owner)-memStore.Pending(owner), memStore.Pending(owner))
	return nil
}
