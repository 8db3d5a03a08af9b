package coordinatornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

// LoadHistory reads the thread and keeps the last limit messages.
// A limit of zero or less keeps everything.
func LoadHistory(ctx context.Context, in *GraphState, store statex.Store, limit int) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	msgs, err := store.Load(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load thread=%s: %w", in.ThreadID, err)
	}
	if limit > 0 {
		msgs = statex.Tail(msgs, limit)
	}
	in.History = msgs
	return in, nil
}
