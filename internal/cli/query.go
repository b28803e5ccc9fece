package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatmem/chatmem/internal/memory"
)

var (
	queryLimit  int
	queryRerank bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve relevant memories for a query",
	Long: `Retrieve the most relevant stored memories for a query.

Results come from the semantic index, ranked by vector distance. With
--rerank a language model re-scores the candidates for better
precision.

Examples:
  chatmem query "where does the user live?" --user alice
  chatmem query "what did we plan?" --user alice --rerank -n 3`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 5, "max results")
	queryCmd.Flags().BoolVar(&queryRerank, "rerank", false, "re-score candidates with the language model")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlags(); err != nil {
		return err
	}

	cfg.TopK = queryLimit
	cfg.RerankEnabled = queryRerank
	if queryRerank {
		if _, err := getModel(); err != nil {
			return err
		}
	} else {
		handler = memory.New(cfg, memStore, nil, workQueue)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.EmbedTimeout+cfg.ChatTimeout)
	defer cancel()

	memories := handler.RelevantMemories(ctx, args[0], flagUser, flagGroup, flagSender)
	if len(memories) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	fmt.Printf("Found %d memories:\n\n", len(memories))
	for i, text := range memories {
		fmt.Printf("%d. %s\n", i+1, text)
	}
	return nil
}
