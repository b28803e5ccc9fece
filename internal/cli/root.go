// Package cli provides the command-line interface for chatmem.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chatmem/chatmem/internal/config"
	"github.com/chatmem/chatmem/internal/embedding"
	"github.com/chatmem/chatmem/internal/llm"
	"github.com/chatmem/chatmem/internal/memory"
	"github.com/chatmem/chatmem/internal/queue"
	"github.com/chatmem/chatmem/internal/rerank"
	"github.com/chatmem/chatmem/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	flagUser   string
	flagGroup  string
	flagSender string

	// Global state, initialized in PersistentPreRunE
	cfg        config.Config
	logCleanup func() error
	memStore   *store.Store
	workQueue  *queue.Queue
	handler    *memory.Handler

	// Lazy-initialized language model
	model *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatmem",
	Short: "Conversational memory engine for chat bots",
	Long: `Chatmem is a RAG memory engine for chat bots: a vector-indexed
store of past conversation turns combined with a three-tier memory
model (short-term log, rolling core summary, semantic long-term store).

Conversations are fed in turn by turn; before each LLM call the bot
pulls relevant memories back out as plain text snippets.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip engine setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		var logger *slog.Logger
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		embedder, err := embedding.New(cfg)
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}

		memStore, err = store.Open(cfg.DataDir, embedder, rerank.New(nil), nil)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}

		workQueue, err = queue.New(cfg.Workers)
		if err != nil {
			return fmt.Errorf("init worker queue: %w", err)
		}

		handler = memory.New(cfg, memStore, nil, workQueue)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if workQueue != nil {
			workQueue.Drain()
			workQueue.Close()
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// getModel lazily initializes the language model for commands that
// summarize or rerank. Commands that only embed never pay for it.
func getModel() (*llm.Model, error) {
	if model != nil {
		return model, nil
	}
	m, err := llm.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init language model: %w", err)
	}
	model = m

	// Rebuild the handler and store with generation wired in.
	memStore.SetReranker(rerank.New(model))
	handler = memory.New(cfg, memStore, model, workQueue)
	return model, nil
}

// owner resolves the --user/--group/--sender flags into a storage key
// via the same namespacing the facade uses.
func requireOwnerFlags() error {
	if flagUser == "" && (flagGroup == "" || flagSender == "") {
		return fmt.Errorf("provide --user, or both --group and --sender")
	}
	return nil
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "user id owning the memory")
	rootCmd.PersistentFlags().StringVarP(&flagGroup, "group", "g", "", "group chat id")
	rootCmd.PersistentFlags().StringVar(&flagSender, "sender", "", "sender name within the group")

	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(coreCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(statsCmd)
}
