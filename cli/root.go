package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile  string
	threadID string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "genie-router",
		Short:         "Route business questions to analytics spaces",
		Long:          `genie-router answers sales, customer and inventory questions by routing them to Databricks Genie spaces and keeping per-thread conversation memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", "", "path to .env file")
	root.PersistentFlags().StringVar(&opts.threadID, "thread", "", "conversation thread id (default: new thread)")

	root.AddCommand(
		newChatCommand(opts),
		newAskCommand(opts),
		newServeCommand(opts),
		newThreadsCommand(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
