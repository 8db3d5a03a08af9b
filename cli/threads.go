package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

func newThreadsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List stored conversation threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := bootstrap(ctx, opts.envFile); err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			lister, ok := store.(statex.ThreadLister)
			if !ok {
				return statex.ErrListUnsupported
			}
			threads, err := lister.ListThreads(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "THREAD\tMESSAGES\tUPDATED")
			for _, t := range threads {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", t.ID, t.MessageCount, t.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum threads to list")
	return cmd
}
