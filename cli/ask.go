package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts.envFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			threadID := opts.threadID
			if threadID == "" {
				threadID = statex.NewThreadID()
			}
			question := strings.Join(args, " ")

			res := askWithRetry(ctx, rt.coord, rt.policy, rt.timeout, threadID, question)
			out := cmd.OutOrStdout()
			if !res.OK {
				_, _ = fmt.Fprintln(out, apology(res.Attempts, res.Error()))
				return errors.New("question failed")
			}
			_, _ = fmt.Fprintln(out, markdownRenderer()(res.Value.Text))
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", threadID)
			return nil
		},
	}
}
