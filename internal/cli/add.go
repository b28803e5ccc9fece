package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatmem/chatmem/internal/memory"
)

var addSystem bool

var addCmd = &cobra.Command{
	Use:   "add <user-message> <assistant-reply>",
	Short: "Record one conversation exchange",
	Long: `Record one completed exchange between the user and the bot.

The exchange lands in the per-user short-term log and the live context
window. Turns pushed out of the window migrate to the long-term index
automatically; every few exchanges the rolling core-memory summary is
refreshed in the background.

Examples:
  chatmem add "I moved to Tokyo" "Nice, how do you like it?" --user alice
  chatmem add "You are a cheerful assistant." "" --user alice --system`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVar(&addSystem, "system", false, "record as a pinned persona preamble")
}

func runAdd(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlags(); err != nil {
		return err
	}

	// Summarization needs the model; best effort, chat works without.
	if _, err := getModel(); err != nil && verbose {
		fmt.Printf("Note: core summarization disabled: %v\n", err)
	}

	handler.AddConversation(memory.Message{
		UserID:         flagUser,
		GroupID:        flagGroup,
		SenderName:     flagSender,
		UserMessage:    args[0],
		AssistantReply: args[1],
		System:         addSystem,
	})

	fmt.Println("Recorded.")
	return nil
}
