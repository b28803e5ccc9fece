package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var coreRefresh bool

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "Show the rolling core-memory summary",
	Long: `Show the user's core memory: a single short summary of durable
facts (preferences, standing commitments) distilled from past
conversations.

With --refresh the summary is regenerated now from the recent
short-term log instead of waiting for the periodic background pass.

Examples:
  chatmem core --user alice
  chatmem core --user alice --refresh`,
	RunE: runCore,
}

func init() {
	coreCmd.Flags().BoolVar(&coreRefresh, "refresh", false, "regenerate the summary now")
}

func runCore(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlags(); err != nil {
		return err
	}

	if coreRefresh {
		if _, err := getModel(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ChatTimeout)
		defer cancel()
		if err := handler.SummarizeCore(ctx, flagUser, flagGroup, flagSender); err != nil {
			return fmt.Errorf("refresh core memory: %w", err)
		}
	}

	content := handler.CoreMemory(flagUser, flagGroup, flagSender)
	if content == "" {
		fmt.Println("No core memory yet.")
		return nil
	}
	fmt.Println(content)
	return nil
}
