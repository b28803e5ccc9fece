package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatmem/chatmem/internal/models"
	"github.com/chatmem/chatmem/internal/store"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Store a memory in the long-term semantic index",
	Long: `Store a piece of text in the long-term memory index.

The text is embedded, indexed for semantic retrieval, and appended to
the durable document log. If the embedding backends are down the text
is still logged and picked up by a later 'chatmem reindex'.

Examples:
  chatmem remember "user likes cats" --user alice
  chatmem remember "prefers short answers" --group work --sender bob`,
	Args: cobra.ExactArgs(1),
	RunE: runRemember,
}

func runRemember(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlags(); err != nil {
		return err
	}
	owner := models.OwnerKey(flagUser, flagGroup, flagSender)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.EmbedTimeout)
	defer cancel()

	err := memStore.Remember(ctx, owner, args[0])
	if errors.Is(err, store.ErrNotIndexed) {
		fmt.Println("Stored, but not indexed yet (embedding unavailable). Run 'chatmem reindex' later.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}

	fmt.Printf("Remembered for %s (%d memories total)\n", owner, memStore.Count(owner))
	return nil
}
