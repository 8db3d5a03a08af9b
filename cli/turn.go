package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/tanpawarit/Chative-Analytics-Router/agent/agents/coordinator"
	retryx "github.com/tanpawarit/Chative-Analytics-Router/agent/retry"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

// turnRunner is the coordinator surface the front ends depend on.
type turnRunner interface {
	Ask(ctx context.Context, threadID, question string) (coordinator.Reply, error)
	History(ctx context.Context, threadID string) ([]statex.Message, error)
}

// askWithRetry runs a whole turn under the outer retry. A failed turn is
// never persisted, so retrying it cannot duplicate history.
func askWithRetry(
	ctx context.Context,
	runner turnRunner,
	policy retryx.Policy,
	timeout time.Duration,
	threadID, question string,
) retryx.Result[coordinator.Reply] {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return retryx.Call(ctx, func(ctx context.Context) (coordinator.Reply, error) {
		return runner.Ask(ctx, threadID, question)
	}, policy)
}

func apology(attempts int, err error) string {
	return fmt.Sprintf("Sorry, I couldn't get an answer after %d attempt(s). Please try again or rephrase your question. (%v)", attempts, err)
}
